// Package security defines the opaque encryption boundary consumed by
// pkg/block. The core never depends on a concrete cipher; it only asks a
// Manager for an Encoder/Decoder bound to a cleartext length.
package security

// Encoder turns cleartext into ciphertext incrementally. Calls to Encrypt
// may be interleaved with writes to the underlying data block; Finalize
// flushes any trailing tag or padding the cipher needs.
type Encoder interface {
	// Encrypt consumes cleartext and returns the ciphertext bytes to
	// append to the block. When finalize is true this is the last call
	// and the encoder may append a trailing authentication tag.
	Encrypt(data []byte, finalize bool) ([]byte, error)

	// ExpectedDataLen returns the total ciphertext length this encoder
	// will produce for the cleartext length it was bound to.
	ExpectedDataLen() int64
}

// Decoder turns ciphertext back into cleartext incrementally.
type Decoder interface {
	// Decrypt consumes ciphertext bytes (in order) and returns any
	// cleartext bytes it can now release. It may buffer internally
	// (e.g. to hold back a trailing MAC tag) and release nothing until
	// enough trailing bytes have arrived to be sure of the boundary.
	Decrypt(data []byte) ([]byte, error)
}

// Manager produces per-block encoders and decoders. rawLen is the
// cleartext length of the block being written (always known to a writer)
// or read (known from the catalog's ChunkRef).
type Manager interface {
	GetEncoder(rawLen int64) (Encoder, error)
	GetDecoder(rawLen int64) (Decoder, error)
}
