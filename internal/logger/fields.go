package logger

import "log/slog"

// Structured field keys used across the catalog, journal, block, transfer,
// and file packages. Trimmed to this module's own vocabulary rather than
// a generic protocol-server field set.
const (
	KeyTransactionID = "tx_id"
	KeyItemID        = "item_id"
	KeyParentID      = "parent_id"
	KeyPath          = "path"
	KeyName          = "name"
	KeySeek          = "seek"
	KeyChunkSize     = "chunk_size"
	KeyBlockPath     = "block_path"
	KeyRemoteKey     = "remote_key"
	KeyReplicaCount  = "replica_count"
	KeyWorker        = "worker"
	KeyQueue         = "queue"
	KeyQueueDepth    = "queue_depth"
	KeyRetry         = "retry"
	KeyDurationMs    = "duration_ms"
	KeyError         = "error"
	KeyJournalRecID  = "journal_rec_id"
	KeyOp            = "op"
)

func TransactionID(v uint64) slog.Attr { return slog.Uint64(KeyTransactionID, v) }
func ItemID(v uint64) slog.Attr        { return slog.Uint64(KeyItemID, v) }
func ParentID(v uint64) slog.Attr      { return slog.Uint64(KeyParentID, v) }
func Path(v string) slog.Attr          { return slog.String(KeyPath, v) }
func Name(v string) slog.Attr          { return slog.String(KeyName, v) }
func Seek(v uint64) slog.Attr          { return slog.Uint64(KeySeek, v) }
func BlockPath(v string) slog.Attr     { return slog.String(KeyBlockPath, v) }
func RemoteKey(v string) slog.Attr     { return slog.String(KeyRemoteKey, v) }
func Worker(v string) slog.Attr        { return slog.String(KeyWorker, v) }
func Queue(v string) slog.Attr         { return slog.String(KeyQueue, v) }
func Err(err error) slog.Attr          { return slog.Any(KeyError, err) }
