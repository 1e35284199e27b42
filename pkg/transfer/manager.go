package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/fabnet/client/internal/logger"
	"github.com/fabnet/client/pkg/block"
	"github.com/fabnet/client/pkg/errs"
	"github.com/fabnet/client/pkg/gateway"
	"github.com/fabnet/client/pkg/gateway/cache"
	"github.com/fabnet/client/pkg/security"
)

// putJob and getJob name the (transaction, chunk) pair a worker must
// transfer; delJob names a bare remote object to remove, independent of
// any owning transaction.
type putJob struct {
	txID    uint64
	seek    uint64
	retries int
}

type getJob struct {
	txID uint64
	seek uint64
}

type delJob struct {
	remoteKey    string
	replicaCount uint8
}

// Config tunes the worker pool sizes (PutWorkers/GetWorkers/
// DeleteWorker counts) and the put-retry backoff.
type Config struct {
	PutWorkers      int
	GetWorkers      int
	DeleteWorkers   int
	QueueSize       int
	PutErrorTimeout time.Duration // FG_ERROR_TIMEOUT
	StopTimeout     time.Duration

	// PutMaxRetries caps how many times a put job is requeued after a
	// gateway failure. Zero (the default) means unlimited: the job is
	// requeued forever until it succeeds or the transaction is abandoned.
	PutMaxRetries int
}

// DefaultConfig returns the worker pool's stated defaults.
func DefaultConfig() Config {
	return Config{
		PutWorkers:      3,
		GetWorkers:      3,
		DeleteWorkers:   1,
		QueueSize:       256,
		PutErrorTimeout: 5 * time.Second,
		StopTimeout:     30 * time.Second,
	}
}

// Manager is the Transactions Manager (C5) plus the Worker Pool (C6): it
// owns every live Transaction, the bounded upload/download/delete queues,
// and the goroutines draining them.
type Manager struct {
	gw  gateway.Gateway
	cfg Config

	// secMgr is passed to Block.Clone to produce read-ready clones: the
	// one a download transaction hands back to its caller once a chunk has
	// finished downloading (the download sink stays a separate,
	// write-only instance), and the one putOnce hands to the gateway.
	secMgr security.Manager

	// existCache and dedup are the content-addressed dedup path:
	// existCache (optional, nil unless SetExistenceCache is called) lets
	// a put worker skip a redundant upload once some other write already
	// replicated the same ciphertext hash; dedup coalesces concurrent put
	// jobs racing to upload that same hash into a single gateway call.
	existCache *cache.ExistenceCache
	dedup      singleflight.Group

	mu       sync.Mutex
	txs      map[uint64]*Transaction
	nextTxID uint64
	started  bool

	putQueue chan putJob
	getQueue chan getJob
	delQueue chan delJob

	wg        sync.WaitGroup
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewManager constructs a Manager bound to gw. secMgr is used only to
// reopen a read-ready clone of a block, either a downloaded chunk or a
// finalized block about to be uploaded (it may be nil, in
// which case cloned blocks are unencrypted passthroughs). Call Start
// before enqueueing any transfer.
func NewManager(gw gateway.Gateway, secMgr security.Manager, cfg Config) *Manager {
	if cfg.PutWorkers <= 0 {
		cfg.PutWorkers = DefaultConfig().PutWorkers
	}
	if cfg.GetWorkers <= 0 {
		cfg.GetWorkers = DefaultConfig().GetWorkers
	}
	if cfg.DeleteWorkers <= 0 {
		cfg.DeleteWorkers = DefaultConfig().DeleteWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.PutErrorTimeout <= 0 {
		cfg.PutErrorTimeout = DefaultConfig().PutErrorTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultConfig().StopTimeout
	}

	return &Manager{
		gw:        gw,
		cfg:       cfg,
		secMgr:    secMgr,
		txs:       make(map[uint64]*Transaction),
		putQueue:  make(chan putJob, cfg.QueueSize),
		getQueue:  make(chan getJob, cfg.QueueSize),
		delQueue:  make(chan delJob, cfg.QueueSize),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start spawns the put/get/delete worker pools. Idempotent.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	for i := 0; i < m.cfg.PutWorkers; i++ {
		m.wg.Add(1)
		go m.runPutWorker(ctx, fmt.Sprintf("PutWorker#%d", i))
	}
	for i := 0; i < m.cfg.GetWorkers; i++ {
		m.wg.Add(1)
		go m.runGetWorker(ctx, fmt.Sprintf("GetWorker#%d", i))
	}
	for i := 0; i < m.cfg.DeleteWorkers; i++ {
		m.wg.Add(1)
		go m.runDeleteWorker(ctx, fmt.Sprintf("DeleteWorker#%d", i))
	}

	go func() {
		m.wg.Wait()
		close(m.stoppedCh)
	}()

	logger.Info("transfer manager started",
		logger.Worker(fmt.Sprintf("put=%d get=%d del=%d", m.cfg.PutWorkers, m.cfg.GetWorkers, m.cfg.DeleteWorkers)))
}

// SetExistenceCache wires an optional remote-key dedup cache in front of
// every put job. Call before Start; nil disables the dedup path (the
// zero-value Manager behaves as if this were never called).
func (m *Manager) SetExistenceCache(c *cache.ExistenceCache) {
	m.existCache = c
}

// putOnce uploads db, coalescing concurrent callers whose block happens
// to hash to the same ciphertext (duplicate content) into a single
// gateway.Put call — the others block on dedup.Do and share its result
// instead of each uploading their own copy. db has already been
// finalized and its write cursor sits at end-of-ciphertext, so the
// gateway reads a fresh clone positioned at the start of the file
// instead of db itself.
func (m *Manager) putOnce(ctx context.Context, db *block.Block, replicaCount int) (string, error) {
	v, err, _ := m.dedup.Do(db.Checksum(), func() (interface{}, error) {
		rc, err := m.readClone(db)
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return m.gw.Put(ctx, rc, replicaCount, false)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Stop signals every worker to drain and exit, waiting up to
// cfg.StopTimeout.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	close(m.stopCh)

	select {
	case <-m.stoppedCh:
		logger.Info("transfer manager stopped gracefully")
	case <-time.After(m.cfg.StopTimeout):
		logger.Warn("transfer manager stop timed out")
	}
}

// BeginWrite opens a new upload transaction for filePath/itemID.
func (m *Manager) BeginWrite(filePath string, itemID uint64, replicaCount uint8, isLocal bool) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTxID++
	tx := newTransaction(m.nextTxID, m, filePath, itemID, TypeWrite, replicaCount, isLocal)
	tx.handle = newHandle()
	m.txs[tx.id] = tx
	logger.Info("transaction opened", logger.TransactionID(tx.id), logger.Path(filePath))
	return tx
}

// BeginRead opens a new download transaction for filePath/itemID, already
// in the DOWNLOADING state. Its chunks are registered afterwards with
// PrepareDownloadChunk, each carrying its RemoteKey from the catalog.
func (m *Manager) BeginRead(filePath string, itemID uint64, replicaCount uint8) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTxID++
	tx := newTransaction(m.nextTxID, m, filePath, itemID, TypeRead, replicaCount, false)
	tx.handle = newHandle()
	tx.setState(StateDownloading)
	m.txs[tx.id] = tx
	logger.Info("transaction opened", logger.TransactionID(tx.id), logger.Path(filePath))
	return tx
}

// Transaction looks up a transaction by id.
func (m *Manager) Transaction(id uint64) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	return tx, ok
}

// Forget drops a finished transaction from the registry.
func (m *Manager) Forget(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.txs, id)
}

// EnqueuePut registers a freshly-produced local block for upload and
// queues the job eagerly: each finished chunk is handed to a PutWorker
// as soon as its data block closes, rather than waiting for the whole
// file.
func (m *Manager) EnqueuePut(tx *Transaction, seek, chunkSize uint64, db *block.Block) {
	tx.registerChunk(seek, chunkSize, db, "", ChunkInflight)
	select {
	case m.putQueue <- putJob{txID: tx.id, seek: seek}:
	default:
		logger.Warn("put queue full, blocking enqueue", logger.TransactionID(tx.id), logger.Seek(seek))
		m.putQueue <- putJob{txID: tx.id, seek: seek}
	}
}

// enqueueDownload is called by Transaction.waitForChunk the first time a
// reader asks for a chunk that hasn't been fetched yet.
func (m *Manager) enqueueDownload(txID, seek uint64) {
	m.getQueue <- getJob{txID: txID, seek: seek}
}

// EnqueueDelete schedules remoteKey for removal from the gateway,
// fire-and-forget: failures are logged and dropped, never retried.
func (m *Manager) EnqueueDelete(remoteKey string, replicaCount uint8) {
	select {
	case m.delQueue <- delJob{remoteKey: remoteKey, replicaCount: replicaCount}:
	default:
		logger.Warn("delete queue full, blocking enqueue", logger.RemoteKey(remoteKey))
		m.delQueue <- delJob{remoteKey: remoteKey, replicaCount: replicaCount}
	}
}

// handleForID resolves a job's txID to its live Transaction, erroring if
// the manager no longer knows about it (e.g. it was forgotten mid-retry).
func (m *Manager) handleForID(id uint64) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, errs.New("transfer.handleForID", "", 0, errs.ErrNotFound)
	}
	return tx, nil
}

// newHandle mints an opaque, globally-unique external handle for a
// transaction, for callers (pkg/file) that need a stable token to pass
// across goroutines without exposing the internal uint64 id.
func newHandle() string {
	return uuid.NewString()
}

// readClone hands back a fresh, read-ready Block over the same file as
// db, whose own cursor is already past end-of-data from whichever
// append loop produced it (the GetWorker's WriteRaw calls on the
// download side, this transaction's Write/Finalize calls on the
// upload side) and so can't be read from directly.
func (m *Manager) readClone(db *block.Block) (*block.Block, error) {
	return db.Clone(m.secMgr)
}
