// Package gateway defines the opaque remote content-addressed store the
// worker pool drives: put/get/remove(key, replicas) -> key. The wire
// protocol itself is out of scope; this is the boundary the core storage
// engine is built against.
package gateway

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get/Remove for a remote key the gateway
// doesn't hold.
var ErrNotFound = errors.New("gateway: remote key not found")

// BlockReader is the minimal read surface a Gateway needs from a data
// block to upload it: the ciphertext stream plus its local file name.
type BlockReader interface {
	ReadRaw(n int) ([]byte, error)
	Name() string
}

// BlockWriter is the minimal write surface a Gateway needs to stream a
// downloaded block into: raw (ciphertext) appends, same shape pkg/block
// exposes for write-path use by Get.
type BlockWriter interface {
	WriteRaw(data []byte) error
}

// Gateway is the opaque fabnet gateway contract.
type Gateway interface {
	// Put uploads block's full ciphertext and returns the remote key
	// (conventionally its content hash). allowRewrite false means an
	// existing object at the derived key is left untouched instead of
	// being overwritten.
	Put(ctx context.Context, block BlockReader, replicaCount int, allowRewrite bool) (string, error)

	// Get downloads remoteKey's ciphertext into out.
	Get(ctx context.Context, remoteKey string, replicaCount int, out BlockWriter) error

	// Remove deletes remoteKey. replicaCount informs how many replicas to
	// fan the deletion out to; it does not change observable semantics
	// for a single logical object.
	Remove(ctx context.Context, remoteKey string, replicaCount int) error
}
