package transfer

import (
	"context"
	"time"

	"github.com/fabnet/client/internal/logger"
)

// runPutWorker drains the upload queue. A gateway failure sleeps
// FG_ERROR_TIMEOUT, reopens the data block, and requeues the exact same
// job — unconditionally, with no retry ceiling by default. A missing
// local data block at dequeue is fatal and fails the chunk immediately
// instead of retrying, since there is nothing left to upload.
func (m *Manager) runPutWorker(ctx context.Context, name string) {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			m.drainPutQueue(ctx, name)
			return
		case <-ctx.Done():
			return
		case job, ok := <-m.putQueue:
			if !ok {
				return
			}
			m.processPutJob(ctx, name, job)
		}
	}
}

func (m *Manager) drainPutQueue(ctx context.Context, name string) {
	for {
		select {
		case job, ok := <-m.putQueue:
			if !ok {
				return
			}
			m.processPutJob(ctx, name, job)
		default:
			return
		}
	}
}

func (m *Manager) processPutJob(ctx context.Context, name string, job putJob) {
	tx, err := m.handleForID(job.txID)
	if err != nil {
		logger.Error("put worker: unknown transaction", logger.Worker(name), logger.TransactionID(job.txID))
		return
	}

	cs, ok := tx.chunkAt(job.seek)
	if !ok || cs.dataBlock == nil {
		logger.Error("data block missing at dequeue", logger.Worker(name), logger.TransactionID(tx.id), logger.Seek(job.seek))
		tx.markFailed(job.seek)
		return
	}

	if !cs.dataBlock.Exists() {
		logger.Error("data block missing at dequeue", logger.Worker(name), logger.TransactionID(tx.id), logger.Seek(job.seek))
		tx.markFailed(job.seek)
		return
	}

	if m.existCache != nil {
		if predictedKey := cs.dataBlock.Checksum(); predictedKey != "" && m.existCache.Has(ctx, predictedKey) {
			cs.dataBlock.Close()
			tx.markDone(job.seek, predictedKey)
			logger.Info("put skipped, remote key already replicated", logger.Worker(name), logger.TransactionID(tx.id), logger.Seek(job.seek))
			return
		}
	}

	key, err := m.putOnce(ctx, cs.dataBlock, int(tx.replicaCount))
	if err != nil {
		if m.cfg.PutMaxRetries > 0 && job.retries >= m.cfg.PutMaxRetries {
			logger.Error("put data block error, retry budget exhausted", logger.Worker(name), logger.TransactionID(tx.id),
				logger.Seek(job.seek), logger.Err(err))
			tx.markFailed(job.seek)
			return
		}
		logger.Error("put data block error, will retry", logger.Worker(name), logger.TransactionID(tx.id),
			logger.Seek(job.seek), logger.Err(err))
		time.Sleep(m.cfg.PutErrorTimeout)
		job.retries++
		m.putQueue <- job
		return
	}

	cs.dataBlock.Close()

	if m.existCache != nil {
		if err := m.existCache.Remember(ctx, key); err != nil {
			logger.Warn("existence cache remember failed", logger.Worker(name), logger.TransactionID(tx.id), logger.Err(err))
		}
	}

	tx.markDone(job.seek, key)
}

// runGetWorker drains the download queue. A job for an already-failed
// transaction is skipped without being fetched (its block is left as is); a
// failed fetch gets a single retry before giving up and marking the
// chunk (and transaction) FAILED.
func (m *Manager) runGetWorker(ctx context.Context, name string) {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			m.drainGetQueue(ctx, name)
			return
		case <-ctx.Done():
			return
		case job, ok := <-m.getQueue:
			if !ok {
				return
			}
			m.processGetJob(ctx, name, job)
		}
	}
}

func (m *Manager) drainGetQueue(ctx context.Context, name string) {
	for {
		select {
		case job, ok := <-m.getQueue:
			if !ok {
				return
			}
			m.processGetJob(ctx, name, job)
		default:
			return
		}
	}
}

func (m *Manager) processGetJob(ctx context.Context, name string, job getJob) {
	tx, err := m.handleForID(job.txID)
	if err != nil {
		logger.Error("get worker: unknown transaction", logger.Worker(name), logger.TransactionID(job.txID))
		return
	}

	if tx.IsFailed() {
		logger.Debug("transaction already failed, skipping download", logger.Worker(name), logger.TransactionID(tx.id))
		return
	}

	cs, ok := tx.chunkAt(job.seek)
	if !ok || cs.remoteKey == "" {
		logger.Error("remote key missing for chunk", logger.Worker(name), logger.TransactionID(tx.id), logger.Seek(job.seek))
		tx.markFailed(job.seek)
		return
	}

	err = m.gw.Get(ctx, cs.remoteKey, int(tx.replicaCount), cs.dataBlock)
	if err != nil {
		if !cs.getRetried {
			cs.getRetried = true
			logger.Warn("get data block error, retrying once", logger.Worker(name), logger.TransactionID(tx.id),
				logger.Seek(job.seek), logger.Err(err))
			m.getQueue <- job
			return
		}
		logger.Error("get data block error, giving up", logger.Worker(name), logger.TransactionID(tx.id),
			logger.Seek(job.seek), logger.Err(err))
		tx.markFailed(job.seek)
		return
	}

	cs.dataBlock.Close()
	tx.markDone(job.seek, cs.remoteKey)
}

// runDeleteWorker drains the delete queue. A gateway failure is logged
// and the job dropped, never retried or requeued.
func (m *Manager) runDeleteWorker(ctx context.Context, name string) {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			m.drainDeleteQueue(ctx, name)
			return
		case <-ctx.Done():
			return
		case job, ok := <-m.delQueue:
			if !ok {
				return
			}
			m.processDeleteJob(ctx, name, job)
		}
	}
}

func (m *Manager) drainDeleteQueue(ctx context.Context, name string) {
	for {
		select {
		case job, ok := <-m.delQueue:
			if !ok {
				return
			}
			m.processDeleteJob(ctx, name, job)
		default:
			return
		}
	}
}

func (m *Manager) processDeleteJob(ctx context.Context, name string, job delJob) {
	if err := m.gw.Remove(ctx, job.remoteKey, int(job.replicaCount)); err != nil {
		logger.Error("delete worker error", logger.Worker(name), logger.RemoteKey(job.remoteKey), logger.Err(err))
		return
	}
	if m.existCache != nil {
		if err := m.existCache.Forget(ctx, job.remoteKey); err != nil {
			logger.Warn("existence cache forget failed", logger.Worker(name), logger.RemoteKey(job.remoteKey), logger.Err(err))
		}
	}
}
