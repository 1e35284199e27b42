// Package block implements the Data Block (C2): one on-disk file holding
// either ciphertext being produced from cleartext or ciphertext being
// consumed into cleartext, with a running SHA-1 digest over that
// ciphertext becoming the block's intended remote key, including a
// tail-read retry/timeout loop for a block still being appended to by a
// concurrent writer.
package block

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fabnet/client/internal/logger"
	"github.com/fabnet/client/pkg/errs"
	"github.com/fabnet/client/pkg/lock"
	"github.com/fabnet/client/pkg/security"
)

// Config holds the tunables for the block layer.
type Config struct {
	BufLen        int           // read buffer size, default 64 KiB
	ReadTryCount  int           // tail-read retry budget, default 5
	ReadSleepTime time.Duration // delay between tail-read retries, default 2s
}

// DefaultConfig returns the block layer's stated defaults.
func DefaultConfig() Config {
	return Config{
		BufLen:        64 * 1024,
		ReadTryCount:  5,
		ReadSleepTime: 2 * time.Second,
	}
}

// Block is one Data Block instance bound to a path.
type Block struct {
	path     string
	cfg      Config
	registry *lock.Registry

	mu   sync.Mutex
	seek int64

	checksum hash.Hash
	f        *os.File

	encoder security.Encoder
	decoder security.Decoder

	rawLen      int64
	rawWritten  int64 // cleartext bytes actually handed to Write, accumulated toward Finalize
	expectedLen int64
	haveLen     bool

	rest   []byte // carried-over decrypted bytes between Read calls
	locked bool
	closed bool
}

// Open binds a Block to path. rawLen must be the cleartext length this
// block will hold — known to a writer from the caller, known to a
// reader from the catalog's ChunkRef — and always determines the
// block's expected ciphertext length, whether or not mgr is set. If mgr
// is non-nil an encoder/decoder pair is created from rawLen (for a
// block already produced this only needs the decoder; Open always asks
// for both since either side may call Write or Read on a clone); if mgr
// is nil the block is an unencrypted passthrough and its expected
// length is simply rawLen. If registry is non-nil the path is
// advisorily locked for the lifetime of this Block, unconditionally on
// construction regardless of read/write direction.
func Open(path string, rawLen int64, mgr security.Manager, registry *lock.Registry, cfg Config) (*Block, error) {
	b := &Block{
		path:     path,
		cfg:      cfg,
		registry: registry,
		checksum: sha1.New(),
		rawLen:   rawLen,
	}

	if mgr != nil {
		enc, err := mgr.GetEncoder(rawLen)
		if err != nil {
			return nil, fmt.Errorf("block: get encoder: %w", err)
		}
		dec, err := mgr.GetDecoder(rawLen)
		if err != nil {
			return nil, fmt.Errorf("block: get decoder: %w", err)
		}
		b.encoder = enc
		b.decoder = dec
		b.expectedLen = enc.ExpectedDataLen()
	} else {
		// No security manager: the block is an unencrypted passthrough,
		// so its ciphertext length is just its cleartext length.
		b.expectedLen = rawLen
	}
	b.haveLen = true

	if registry != nil {
		registry.Acquire(path)
		b.locked = true
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("block: create %s: %w", path, err)
		}
		f.Close()
	}

	return b, nil
}

// Clone constructs a second Block over the same path with an independent
// read/write cursor but sharing the advisory lock's registry entry (a
// fresh Acquire of its own).
func (b *Block) Clone(mgr security.Manager) (*Block, error) {
	return Open(b.path, b.rawLen, mgr, b.registry, b.cfg)
}

// Name returns the block's file basename.
func (b *Block) Name() string { return filepath.Base(b.path) }

// Path returns the block's full file path.
func (b *Block) Path() string { return b.path }

// GetProgress returns (bytes done, expected bytes).
func (b *Block) GetProgress() (int64, int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seek, b.expectedLen
}

func (b *Block) getSeek() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seek
}

// Checksum returns the running SHA-1 hex digest over the ciphertext
// written or read so far.
func (b *Block) Checksum() string {
	return hex.EncodeToString(b.checksum.Sum(nil))
}

// Exists reports whether the backing file is present.
func (b *Block) Exists() bool {
	_, err := os.Stat(b.path)
	return err == nil
}

// Write encodes data (if a security manager was configured), updates the
// checksum, appends to the file, and advances seek by exactly the number
// of ciphertext bytes appended in this call. When finalize is true the
// encoder flushes any trailing tag. Returns the ciphertext actually
// written.
func (b *Block) Write(data []byte, finalize bool) ([]byte, error) {
	rawN := int64(len(data))

	if b.encoder != nil {
		encoded, err := b.encoder.Encrypt(data, finalize)
		if err != nil {
			return nil, fmt.Errorf("block: encrypt: %w", err)
		}
		data = encoded
	}

	if len(data) > 0 {
		b.checksum.Write(data)

		if b.f == nil {
			f, err := os.OpenFile(b.path, os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, fmt.Errorf("block: open for append %s: %w", b.path, err)
			}
			b.f = f
		}
		if _, err := b.f.Write(data); err != nil {
			return nil, fmt.Errorf("block: write %s: %w", b.path, err)
		}

		b.mu.Lock()
		b.seek += int64(len(data))
		b.mu.Unlock()
	}

	if rawN > 0 {
		b.mu.Lock()
		b.rawWritten += rawN
		b.mu.Unlock()
	}

	return data, nil
}

// WriteRaw appends data to the file unencrypted, updating checksum and
// seek the same way Write does — used by the download path, which writes
// ciphertext already fetched from the gateway straight to disk.
func (b *Block) WriteRaw(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	b.checksum.Write(data)
	if b.f == nil {
		f, err := os.OpenFile(b.path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("block: open for append %s: %w", b.path, err)
		}
		b.f = f
	}
	if _, err := b.f.Write(data); err != nil {
		return fmt.Errorf("block: write raw %s: %w", b.path, err)
	}
	b.mu.Lock()
	b.seek += int64(len(data))
	b.mu.Unlock()
	return nil
}

// Finalize flushes the encoder (if any) and closes the write handle.
// rawLen is updated to the cleartext length actually written, so a
// Clone taken afterwards gets a decoder/encoder sized to the real
// ciphertext on disk rather than whatever capacity the block was
// opened with.
func (b *Block) Finalize() error {
	if _, err := b.Write(nil, true); err != nil {
		return err
	}
	b.rawLen = b.rawWritten
	if b.f != nil {
		err := b.f.Close()
		b.f = nil
		return err
	}
	return nil
}

// Close closes any open file handle and releases the advisory lock.
// Idempotent.
func (b *Block) Close() error {
	var err error
	if b.f != nil {
		err = b.f.Close()
		b.f = nil
	}
	if b.locked {
		b.registry.Release(b.path)
		b.locked = false
	}
	b.closed = true
	return err
}

// ReadRaw reads up to n ciphertext bytes (or until EOF if n <= 0),
// bypassing decryption — used by uploads forwarding already-encrypted
// bytes straight to the gateway.
func (b *Block) ReadRaw(n int) ([]byte, error) {
	if n <= 0 {
		var out []byte
		for {
			buf, err := b.readBuf(b.cfg.BufLen)
			if err != nil {
				return nil, err
			}
			if len(buf) == 0 {
				break
			}
			out = append(out, buf...)
		}
		if len(out) > 0 {
			b.checksum.Write(out)
		}
		return out, nil
	}
	buf, err := b.readBuf(n)
	if err != nil {
		return nil, err
	}
	if len(buf) > 0 {
		b.checksum.Write(buf)
	}
	return buf, nil
}

// Read reads up to n cleartext bytes (or until EOF if n <= 0). Ciphertext
// is read in BufLen chunks, decrypted, and any surplus decrypted bytes
// are carried over to the next call.
func (b *Block) Read(n int) ([]byte, error) {
	ret := b.rest
	b.rest = nil

	for {
		if n > 0 && len(ret) >= n {
			b.rest = ret[n:]
			ret = ret[:n]
			break
		}

		data, err := b.readBufChecked(b.cfg.BufLen)
		if err != nil {
			return nil, err
		}
		if len(data) == 0 {
			break
		}

		var plain []byte
		if b.decoder != nil {
			plain, err = b.decoder.Decrypt(data)
			if err != nil {
				return nil, fmt.Errorf("block: decrypt: %w", err)
			}
		} else {
			plain = data
		}
		ret = append(ret, plain...)
	}

	return ret, nil
}

// readBufChecked is readBuf but also folds the raw bytes into the
// checksum, so the decrypting Read path and the raw ReadRaw path share
// identical checksum update semantics.
func (b *Block) readBufChecked(n int) ([]byte, error) {
	data, err := b.readBuf(n)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		b.checksum.Write(data)
	}
	return data, nil
}

// readBuf is the tail-read retry loop: it reads up to readBufLen bytes,
// reopening the file and seeking to the current cursor if necessary, and
// retries up to ReadTryCount times with ReadSleepTime delay if a read
// returns fewer bytes than needed and the block hasn't reached its
// expected length yet.
func (b *Block) readBuf(readBufLen int) ([]byte, error) {
	if !b.haveLen {
		return nil, fmt.Errorf("block: %s: unknown data block size", b.path)
	}
	if b.expectedLen <= b.getSeek() {
		return nil, nil
	}

	var ret []byte
	remaining := readBufLen

	for i := 0; i < b.cfg.ReadTryCount; i++ {
		if b.f == nil {
			f, err := os.Open(b.path)
			if err != nil {
				return nil, fmt.Errorf("block: reopen %s: %w", b.path, err)
			}
			if _, err := f.Seek(b.getSeek(), 0); err != nil {
				f.Close()
				return nil, fmt.Errorf("block: seek %s: %w", b.path, err)
			}
			b.f = f
		}

		buf := make([]byte, remaining)
		n, err := b.f.Read(buf)
		if err != nil && n == 0 {
			// EOF with nothing read is not itself an error here; the
			// retry loop below decides whether to keep waiting.
			n = 0
		}

		b.mu.Lock()
		b.seek += int64(n)
		b.mu.Unlock()

		ret = append(ret, buf[:n]...)
		remaining -= n

		if remaining > 0 {
			b.f.Close()
			b.f = nil
			if b.expectedLen <= b.getSeek() {
				break
			}
			logger.Debug("tail read waiting for writer", logger.BlockPath(b.path), logger.KeyRetry, i)
			time.Sleep(b.cfg.ReadSleepTime)
			continue
		}
		return ret, nil
	}

	if remaining > 0 && b.expectedLen > b.getSeek() {
		return nil, errs.New("block.readBuf", b.path, 0, errs.ErrTimeout)
	}
	return ret, nil
}
