package transfer

import (
	"sort"
	"sync"

	"github.com/fabnet/client/pkg/block"
	"github.com/fabnet/client/pkg/errs"
)

// Transaction represents one file operation (upload or download) and
// owns every chunk's transfer status.
type Transaction struct {
	id           uint64
	handle       string
	filePath     string
	itemID       uint64
	txType       TransactionType
	replicaCount uint8
	isLocal      bool

	manager *Manager

	mu         sync.Mutex
	cond       *sync.Cond
	state      State
	seeks      []uint64 // chunk seeks in ascending order
	chunks     map[uint64]*chunkStatus
	localSaved bool
	onFinished func(*Transaction)
	finishOnce sync.Once
}

func newTransaction(id uint64, m *Manager, filePath string, itemID uint64, txType TransactionType, replicaCount uint8, isLocal bool) *Transaction {
	tx := &Transaction{
		id:           id,
		filePath:     filePath,
		itemID:       itemID,
		txType:       txType,
		replicaCount: replicaCount,
		isLocal:      isLocal,
		manager:      m,
		state:        StateActive,
		chunks:       make(map[uint64]*chunkStatus),
	}
	tx.cond = sync.NewCond(&tx.mu)
	return tx
}

func (tx *Transaction) ID() uint64            { return tx.id }
func (tx *Transaction) Handle() string        { return tx.handle }
func (tx *Transaction) FilePath() string      { return tx.filePath }
func (tx *Transaction) ItemID() uint64        { return tx.itemID }
func (tx *Transaction) ReplicaCount() uint8   { return tx.replicaCount }
func (tx *Transaction) Type() TransactionType { return tx.txType }
func (tx *Transaction) IsLocal() bool         { return tx.isLocal }

func (tx *Transaction) State() State {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state
}

func (tx *Transaction) IsFailed() bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.state == StateFailed
}

// setState moves the transaction to state, except that a FAILED
// transaction is sticky: once failed, it never reverts to a later
// success — sticky failure over last-write-wins.
func (tx *Transaction) setState(state State) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.setStateLocked(state)
}

func (tx *Transaction) setStateLocked(state State) {
	if tx.state == StateFailed {
		return
	}
	tx.state = state
}

// Fail moves the transaction straight to FAILED, for callers (the file
// layer) that hit a local error with no single chunk to blame.
func (tx *Transaction) Fail() {
	tx.setState(StateFailed)
	tx.mu.Lock()
	tx.cond.Broadcast()
	tx.mu.Unlock()
}

// registerChunk adds a new chunk at seek with size chunkSize, bound to
// dataBlock. Used by EnqueuePut (write path, block freshly produced) and
// by PrepareDownloadChunk (read path, block not yet downloaded).
func (tx *Transaction) registerChunk(seek, chunkSize uint64, db *block.Block, remoteKey string, state ChunkState) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if _, exists := tx.chunks[seek]; !exists {
		tx.seeks = append(tx.seeks, seek)
		sort.Slice(tx.seeks, func(i, j int) bool { return tx.seeks[i] < tx.seeks[j] })
	}
	tx.chunks[seek] = &chunkStatus{dataBlock: db, state: state, remoteKey: remoteKey, chunkSize: chunkSize}
}

// CompleteLocalChunk registers a chunk that never needs remote upload
// (an is_local/temp-file block) as immediately ChunkDone, so the
// transaction's all-chunks-done check is satisfied without ever touching
// the put queue. Its "remote key" is its local file path instead of a
// gateway content hash — an is_local block stays on local cache and is
// read back from that same path, never fetched.
func (tx *Transaction) CompleteLocalChunk(seek, chunkSize uint64, db *block.Block) {
	tx.registerChunk(seek, chunkSize, db, db.Path(), ChunkDone)
}

func (tx *Transaction) chunkAt(seek uint64) (*chunkStatus, bool) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	cs, ok := tx.chunks[seek]
	return cs, ok
}

// markDone records a chunk's successful transfer, wakes any caller
// blocked in waitForChunk, and — if the transaction has already been
// marked LOCAL_SAVED and every chunk is now done — finishes it.
func (tx *Transaction) markDone(seek uint64, remoteKey string) (allDone bool) {
	tx.mu.Lock()
	if cs, ok := tx.chunks[seek]; ok {
		cs.state = ChunkDone
		cs.remoteKey = remoteKey
	}
	tx.cond.Broadcast()
	allDone = tx.allChunksDoneLocked()
	readyToFinish := allDone && tx.localSaved && tx.state != StateFailed
	tx.mu.Unlock()

	if readyToFinish {
		tx.finish()
	}
	return allDone
}

// markFailed records a chunk's terminal failure, moves the whole
// transaction to FAILED (sticky), and wakes blocked callers.
func (tx *Transaction) markFailed(seek uint64) {
	tx.mu.Lock()
	if cs, ok := tx.chunks[seek]; ok {
		cs.state = ChunkFailed
	}
	tx.setStateLocked(StateFailed)
	tx.cond.Broadcast()
	tx.mu.Unlock()
}

func (tx *Transaction) allChunksDoneLocked() bool {
	for _, cs := range tx.chunks {
		if cs.state != ChunkDone {
			return false
		}
	}
	return true
}

// MarkLocalSaved transitions a write transaction out of ACTIVE once every
// byte has been flushed to local block files (the LOCAL_SAVED state).
// onFinished runs exactly once, either immediately (every chunk was
// already uploaded, or there were none to upload) or later, the moment
// the last in-flight chunk's PutWorker calls markDone — whichever
// happens last. This is the dispatcher step: watching a LOCAL_SAVED
// transaction's chunks reach DONE before committing catalog metadata.
func (tx *Transaction) MarkLocalSaved(onFinished func(*Transaction)) {
	tx.mu.Lock()
	tx.onFinished = onFinished
	tx.setStateLocked(StateLocalSaved)
	tx.localSaved = true
	allDone := tx.allChunksDoneLocked()
	readyToFinish := allDone && tx.state != StateFailed
	tx.mu.Unlock()

	if readyToFinish {
		tx.finish()
	}
}

// finish moves the transaction to FINISHED and invokes its completion
// callback exactly once, however many of markDone/MarkLocalSaved raced to
// trigger it.
func (tx *Transaction) finish() {
	tx.finishOnce.Do(func() {
		tx.setState(StateFinished)
		tx.mu.Lock()
		cb := tx.onFinished
		tx.mu.Unlock()
		if cb != nil {
			cb(tx)
		}
	})
}

// waitForChunk blocks until seek's chunk reaches ChunkDone or ChunkFailed,
// enqueuing a download job the first time it is asked about, then returns
// a fresh read-ready clone of the downloaded block, handed to the reader
// while the download sink stays a separate write-only instance.
func (tx *Transaction) waitForChunk(seek uint64) (*block.Block, error) {
	tx.mu.Lock()
	cs, ok := tx.chunks[seek]
	if !ok {
		tx.mu.Unlock()
		return nil, errs.New("transfer.waitForChunk", tx.filePath, tx.itemID, errs.ErrNotFound)
	}

	if !cs.downloadSent && cs.state != ChunkDone && cs.state != ChunkFailed {
		cs.downloadSent = true
		cs.state = ChunkInflight
		tx.mu.Unlock()
		tx.manager.enqueueDownload(tx.id, seek)
		tx.mu.Lock()
	}

	for cs.state != ChunkDone && cs.state != ChunkFailed {
		tx.cond.Wait()
	}
	state := cs.state
	db := cs.dataBlock
	tx.mu.Unlock()

	if state == ChunkFailed {
		return nil, errs.New("transfer.waitForChunk", tx.filePath, tx.itemID, errs.ErrTransactionBad)
	}
	return tx.manager.readClone(db)
}

// PrepareDownloadChunk registers seek as a pending download: db is an
// already-opened, empty Block the GetWorker will fill via WriteRaw once
// the gateway fetch completes. Called by the file layer up front for
// every chunk a read transaction will eventually need, using the
// ChunkRef list loaded from the catalog.
func (tx *Transaction) PrepareDownloadChunk(seek, chunkSize uint64, remoteKey string, db *block.Block) {
	tx.registerChunk(seek, chunkSize, db, remoteKey, ChunkPending)
}

// ReadChunk blocks until seek's block has been downloaded (enqueueing the
// download job on first access) and returns a read-ready clone of it.
func (tx *Transaction) ReadChunk(seek uint64) (*block.Block, error) {
	return tx.waitForChunk(seek)
}

// ChunkSnapshot is the externally visible, catalog-agnostic view of one
// chunk's final transfer result.
type ChunkSnapshot struct {
	Seek      uint64
	ChunkSize uint64
	RemoteKey string
}

// Chunks returns every chunk's final status in ascending seek order, for
// committing into the metadata catalog once a write transaction finishes.
func (tx *Transaction) Chunks() []ChunkSnapshot {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	out := make([]ChunkSnapshot, 0, len(tx.seeks))
	for _, seek := range tx.seeks {
		cs := tx.chunks[seek]
		out = append(out, ChunkSnapshot{Seek: seek, ChunkSize: cs.chunkSize, RemoteKey: cs.remoteKey})
	}
	return out
}
