package file

import (
	"github.com/fabnet/client/internal/logger"
	"github.com/fabnet/client/pkg/block"
	"github.com/fabnet/client/pkg/catalog"
	"github.com/fabnet/client/pkg/errs"
	"github.com/fabnet/client/pkg/transfer"
)

// File is a single open stream over one catalog path, bound to either a
// write or a read transaction for its whole lifetime: one instance is
// for-write or for-read, never both.
type File struct {
	store    *Store
	path     string
	forWrite bool

	seek int64

	// write-side state
	tx           *transfer.Transaction
	curBlock     *block.Block
	curBlockSeek int64 // bytes written into curBlock so far
	unsync       bool
	isTmp        bool
	tmpMaxSize   int64
	existingID   uint64

	// read-side state
	rtx       *transfer.Transaction
	localRead bool // item.IsLocal: chunks read straight from their cached path, no transaction
	chunks    []catalog.ChunkRef
	chunkIdx  int

	closed bool
	failed bool
}

// Write appends data to the file, splitting it across fixed-size blocks
// (MaxDataBlockSize) and handing each finished block to the transfer
// manager as soon as it's full — never buffering a whole file in memory.
func (f *File) Write(data []byte) error {
	if !f.forWrite {
		return errs.New("file.Write", f.path, 0, errs.ErrPermissions)
	}
	if f.closed {
		return errs.New("file.Write", f.path, 0, errs.ErrClosed)
	}
	if len(data) == 0 {
		return nil
	}

	if err := f.writeLocked(data); err != nil {
		f.failTransaction(err)
		return err
	}
	return nil
}

func (f *File) writeLocked(data []byte) error {
	if f.tx == nil {
		f.tx = f.store.mgr.BeginWrite(f.path, f.existingID, f.store.cfg.ReplicaCount, f.isTmp)
	}

	if f.curBlock == nil {
		blockPath := f.store.newBlockFilePath(f.tx.ID())
		b, err := block.Open(blockPath, f.store.cfg.MaxDataBlockSize, f.store.sec, f.store.registry, f.store.blockCfg)
		if err != nil {
			return err
		}
		f.curBlock = b
		f.curBlockSeek = 0
	}

	var rest int64
	if !f.stillTmp() {
		rest = f.curBlockSeek + int64(len(data)) - f.store.cfg.MaxDataBlockSize
	}

	var restData []byte
	if rest > 0 {
		splitAt := int64(len(data)) - rest
		restData = data[splitAt:]
		data = data[:splitAt]
	}

	if _, err := f.curBlock.Write(data, false); err != nil {
		return err
	}
	f.curBlockSeek += int64(len(data))
	f.unsync = true

	if len(restData) > 0 {
		if err := f.sendDataBlock(); err != nil {
			return err
		}
		return f.writeLocked(restData)
	}
	return nil
}

// stillTmp reports whether a temp file remains within the size its
// pattern exempted it for. Once it grows past tmpMaxSize it reverts to
// ordinary fixed-size block splitting like any other file.
func (f *File) stillTmp() bool {
	return f.isTmp && f.curBlockSeek <= f.tmpMaxSize
}

// sendDataBlock finalizes the current block and either enqueues it for
// upload (ordinary files) or marks it locally complete without ever
// touching the gateway (temp files).
func (f *File) sendDataBlock() error {
	if err := f.curBlock.Finalize(); err != nil {
		return err
	}

	if f.curBlockSeek > 0 {
		if f.isTmp {
			f.tx.CompleteLocalChunk(uint64(f.seek), uint64(f.curBlockSeek), f.curBlock)
		} else {
			f.store.mgr.EnqueuePut(f.tx, uint64(f.seek), uint64(f.curBlockSeek), f.curBlock)
		}
	}

	f.seek += f.curBlockSeek
	f.curBlockSeek = 0
	f.curBlock = nil
	f.unsync = false
	return nil
}

// GetSeek returns the current stream position.
func (f *File) GetSeek() int64 { return f.seek }

// Read returns up to readLen decrypted bytes from the current position
// (or, if readLen <= 0, every remaining byte). The download transaction
// and its chunk list are opened lazily on first call.
func (f *File) Read(readLen int) ([]byte, error) {
	if f.forWrite {
		return nil, errs.New("file.Read", f.path, 0, errs.ErrPermissions)
	}
	if f.closed {
		return nil, errs.New("file.Read", f.path, 0, errs.ErrClosed)
	}

	if err := f.ensureDownloadTransaction(); err != nil {
		f.failTransaction(err)
		return nil, err
	}

	out, err := f.readLocked(readLen)
	if err != nil {
		f.failTransaction(err)
		return nil, err
	}
	return out, nil
}

func (f *File) readLocked(readLen int) ([]byte, error) {
	var out []byte
	for {
		if f.curBlock == nil {
			if f.chunkIdx >= len(f.chunks) {
				break
			}
			chunkRef := f.chunks[f.chunkIdx]
			b, err := f.nextChunkBlock(chunkRef)
			if err != nil {
				return nil, err
			}
			f.curBlock = b
		}

		want := readLen
		if readLen > 0 {
			want = readLen - len(out)
		}
		data, err := f.curBlock.Read(want)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			out = append(out, data...)
		}

		if readLen > 0 && len(out) >= readLen {
			break
		}

		if len(data) == 0 {
			f.curBlock.Close()
			f.curBlock = nil
			f.chunkIdx++
		}
	}
	return out, nil
}

// ensureDownloadTransaction looks the file up in the catalog and either
// opens a download transaction with every chunk registered up front (an
// ordinary, uploaded file) or, for an is_local item, marks the file for
// direct local reads with no transaction at all — its blocks never left
// the local cache, so there is nothing to fetch.
func (f *File) ensureDownloadTransaction() error {
	if f.rtx != nil || f.localRead {
		return nil
	}

	item, err := f.store.cat.Find(f.path)
	if err != nil {
		return err
	}
	if !item.IsFile() {
		return errs.New("file.ensureDownloadTransaction", f.path, item.ItemID, errs.ErrPathNotFound)
	}

	if item.IsLocal {
		f.localRead = true
		f.chunks = item.Chunks
		f.chunkIdx = 0
		return nil
	}

	tx := f.store.mgr.BeginRead(f.path, item.ItemID, f.store.cfg.ReplicaCount)
	for _, ref := range item.Chunks {
		blockPath := f.store.newBlockFilePath(tx.ID())
		b, err := block.Open(blockPath, int64(ref.ChunkSize), nil, f.store.registry, f.store.blockCfg)
		if err != nil {
			return err
		}
		tx.PrepareDownloadChunk(ref.Seek, ref.ChunkSize, string(ref.RemoteKey), b)
	}

	f.rtx = tx
	f.chunks = item.Chunks
	f.chunkIdx = 0
	return nil
}

// nextChunkBlock returns a read-ready block for ref: for a local-cache
// file this reopens ref's own path directly (its RemoteKey is a local
// path, not a gateway key); otherwise it blocks on the download
// transaction fetching it.
func (f *File) nextChunkBlock(ref catalog.ChunkRef) (*block.Block, error) {
	if f.localRead {
		return block.Open(string(ref.RemoteKey), int64(ref.ChunkSize), f.store.sec, f.store.registry, f.store.blockCfg)
	}
	return f.rtx.ReadChunk(ref.Seek)
}

// Close flushes any pending write and marks the transaction
// LOCAL_SAVED, or (read side) releases the current chunk's block.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	defer func() { f.closed = true }()

	if f.failed {
		return nil
	}

	if f.forWrite {
		if f.unsync && f.curBlock != nil {
			if err := f.sendDataBlock(); err != nil {
				f.failTransaction(err)
				return err
			}
		} else if f.tx == nil {
			if err := f.store.saveEmptyFile(f.path, f.isTmp); err != nil {
				f.failTransaction(err)
				return err
			}
			return nil
		}

		if f.tx != nil {
			f.tx.MarkLocalSaved(func(tx *transfer.Transaction) {
				f.store.commitWriteTransaction(tx)
			})
		}
		return nil
	}

	if f.curBlock != nil {
		f.curBlock.Close()
		f.curBlock = nil
	}
	return nil
}

// failTransaction marks the file and its transaction (if any) as failed,
// releasing whatever block is currently open.
func (f *File) failTransaction(err error) {
	f.failed = true
	logger.Error("file: io error", logger.Path(f.path), logger.Err(err))

	if f.curBlock != nil {
		f.curBlock.Close()
		f.curBlock = nil
	}

	if f.tx != nil {
		f.tx.Fail()
	}
	if f.rtx != nil {
		f.rtx.Fail()
	}
}
