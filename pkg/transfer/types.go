// Package transfer implements the Transactions Manager (C5) and Worker
// Pool (C6): a per-file transaction state machine driving bounded
// upload/download/delete queues against the remote gateway, wired
// through channel-based worker pools (bounded channel, context-aware
// Start, WaitGroup-backed Stop with timeout).
package transfer

import "github.com/fabnet/client/pkg/block"

// TransactionType distinguishes an upload transaction from a download one.
type TransactionType uint8

const (
	TypeWrite TransactionType = iota
	TypeRead
)

// State is a transaction's position in its state machine.
type State uint8

const (
	StateInit State = iota
	StateActive
	StateLocalSaved
	StateUploading
	StateDownloading
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateActive:
		return "ACTIVE"
	case StateLocalSaved:
		return "LOCAL_SAVED"
	case StateUploading:
		return "UPLOADING"
	case StateDownloading:
		return "DOWNLOADING"
	case StateFinished:
		return "FINISHED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ChunkState is one block's position within its transaction.
type ChunkState uint8

const (
	ChunkPending ChunkState = iota
	ChunkInflight
	ChunkDone
	ChunkFailed
)

// chunkStatus tracks one block's transfer progress, keyed by its seek
// (logical byte offset) within the owning transaction.
type chunkStatus struct {
	dataBlock    *block.Block
	state        ChunkState
	remoteKey    string
	chunkSize    uint64
	getRetried   bool // GetWorker retries exactly once before giving up
	downloadSent bool // avoids double-enqueueing a download job
}
