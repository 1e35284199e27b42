// Package aesgcm is the default security.Manager: AES-256 in CTR mode for
// streaming block encryption with an HMAC-SHA256 tag appended at
// finalize, keys derived per block via HKDF from a master key. Plain AEAD
// (AES-GCM) encrypts in one shot and can't be fed a block across multiple
// DataBlock.Write calls without buffering the whole block in memory; CTR
// keeps the streaming write path the block layer relies on while HKDF +
// HMAC still give every block its own key and an integrity tag.
package aesgcm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/fabnet/client/pkg/security"
)

const (
	saltSize = 16
	tagSize  = sha256.Size
	keySize  = 32
)

// Manager is a security.Manager backed by a single master key. Every
// block gets its own derived key and random salt, so the master key never
// touches disk and compromise of one block's key reveals nothing about
// another's.
type Manager struct {
	masterKey []byte
}

// New constructs a Manager from a 32-byte master key.
func New(masterKey []byte) (*Manager, error) {
	if len(masterKey) != keySize {
		return nil, fmt.Errorf("aesgcm: master key must be %d bytes, got %d", keySize, len(masterKey))
	}
	return &Manager{masterKey: masterKey}, nil
}

func (m *Manager) deriveKey(salt []byte, info string) ([]byte, error) {
	kdf := hkdf.New(sha256.New, m.masterKey, salt, []byte(info))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}
	return key, nil
}

// GetEncoder implements security.Manager.
func (m *Manager) GetEncoder(rawLen int64) (security.Encoder, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("aesgcm: generate salt: %w", err)
	}
	key, err := m.deriveKey(salt, "fabnet-block-encrypt")
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aes.BlockSize)
	stream := cipher.NewCTR(block, iv)
	mac := hmac.New(sha256.New, key)

	return &encoder{
		stream:   stream,
		mac:      mac,
		salt:     salt,
		rawLen:   rawLen,
		wroteHdr: false,
	}, nil
}

// GetDecoder implements security.Manager.
func (m *Manager) GetDecoder(rawLen int64) (security.Decoder, error) {
	return &decoder{mgr: m, rawLen: rawLen}, nil
}

// encoder streams AES-CTR ciphertext prefixed by the per-block salt,
// followed at Finalize by an HMAC-SHA256 tag over everything emitted.
type encoder struct {
	stream   cipher.Stream
	mac      hash.Hash
	salt     []byte
	rawLen   int64
	wroteHdr bool
}

func (e *encoder) Encrypt(data []byte, finalize bool) ([]byte, error) {
	out := make([]byte, 0, len(e.salt)+len(data)+tagSize)
	if !e.wroteHdr {
		out = append(out, e.salt...)
		e.mac.Write(e.salt)
		e.wroteHdr = true
	}
	if len(data) > 0 {
		ct := make([]byte, len(data))
		e.stream.XORKeyStream(ct, data)
		e.mac.Write(ct)
		out = append(out, ct...)
	}
	if finalize {
		out = append(out, e.mac.Sum(nil)...)
	}
	return out, nil
}

func (e *encoder) ExpectedDataLen() int64 {
	return int64(saltSize) + e.rawLen + int64(tagSize)
}

// decoder mirrors encoder: consumes the leading salt, derives the same
// key, decrypts with CTR, and holds back the last tagSize bytes (which
// may be the HMAC tag) until it can be sure they're not part of it.
type decoder struct {
	mgr    *Manager
	rawLen int64

	gotSalt bool
	stream  cipher.Stream
	mac     hash.Hash

	pending []byte // bytes received but not yet released, to hold back the tag
}

func (d *decoder) Decrypt(data []byte) ([]byte, error) {
	d.pending = append(d.pending, data...)

	if !d.gotSalt {
		if len(d.pending) < saltSize {
			return nil, nil
		}
		salt := d.pending[:saltSize]
		d.pending = d.pending[saltSize:]
		key, err := d.mgr.deriveKey(salt, "fabnet-block-encrypt")
		if err != nil {
			return nil, err
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		iv := make([]byte, aes.BlockSize)
		d.stream = cipher.NewCTR(block, iv)
		d.mac = hmac.New(sha256.New, key)
		d.mac.Write(salt)
		d.gotSalt = true
	}

	// Hold back the last tagSize bytes: they might be the trailing MAC.
	if len(d.pending) <= tagSize {
		return nil, nil
	}
	releasable := d.pending[:len(d.pending)-tagSize]
	d.pending = d.pending[len(d.pending)-tagSize:]

	d.mac.Write(releasable)
	pt := make([]byte, len(releasable))
	d.stream.XORKeyStream(pt, releasable)
	return pt, nil
}
