package transfer_test

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fabnet/client/pkg/block"
	"github.com/fabnet/client/pkg/gateway/cache"
	"github.com/fabnet/client/pkg/gateway/memory"
	"github.com/fabnet/client/pkg/transfer"
)

func writeBlock(t *testing.T, dir, name string, data []byte) *block.Block {
	t.Helper()
	path := filepath.Join(dir, name)
	b, err := block.Open(path, int64(len(data)), nil, nil, block.DefaultConfig())
	require.NoError(t, err)
	_, err = b.Write(data, true)
	require.NoError(t, err)
	require.NoError(t, b.Finalize())
	return b
}

func sha1Hex(data []byte) string {
	h := sha1.Sum(data)
	return hex.EncodeToString(h[:])
}

func TestUploadTransactionFinishesOnAllChunksDone(t *testing.T) {
	dir := t.TempDir()
	gw := memory.New()
	mgr := transfer.NewManager(gw, nil, transfer.Config{PutWorkers: 1, GetWorkers: 1, DeleteWorkers: 1, QueueSize: 8})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	tx := mgr.BeginWrite("/a.txt", 1, 1, false)

	b1 := writeBlock(t, dir, "chunk0", []byte("hello"))
	mgr.EnqueuePut(tx, 0, 5, b1)

	// Close of the writer happens after every chunk has been queued; the
	// transaction only reaches FINISHED once it is both LOCAL_SAVED and
	// every chunk is DONE, matching the dispatcher semantics.
	tx.MarkLocalSaved(nil)

	require.Eventually(t, func() bool {
		return tx.State() == transfer.StateFinished
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, gw.Exists(sha1Hex([]byte("hello"))))
}

func TestPutSkipsUploadWhenExistenceCacheHasKey(t *testing.T) {
	dir := t.TempDir()
	gw := memory.New()
	mgr := transfer.NewManager(gw, nil, transfer.Config{PutWorkers: 1, GetWorkers: 1, DeleteWorkers: 1, QueueSize: 8})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	existCache := cache.NewWithClient(client, time.Minute)
	mgr.SetExistenceCache(existCache)

	data := []byte("duplicate content")
	key := sha1Hex(data)
	require.NoError(t, existCache.Remember(context.Background(), key))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	tx := mgr.BeginWrite("/dup.txt", 1, 1, false)
	b := writeBlock(t, dir, "chunk0", data)
	mgr.EnqueuePut(tx, 0, uint64(len(data)), b)
	tx.MarkLocalSaved(nil)

	require.Eventually(t, func() bool {
		return tx.State() == transfer.StateFinished
	}, 2*time.Second, 10*time.Millisecond)

	require.False(t, gw.Exists(key), "gateway should never have received the duplicate upload")
}

func TestDownloadTransactionWaitsForChunk(t *testing.T) {
	dir := t.TempDir()
	gw := memory.New()

	uploadMgr := transfer.NewManager(gw, nil, transfer.Config{PutWorkers: 1, GetWorkers: 1, DeleteWorkers: 1, QueueSize: 8})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	uploadMgr.Start(ctx)

	uploadTx := uploadMgr.BeginWrite("/b.txt", 2, 1, false)
	b1 := writeBlock(t, dir, "up-chunk0", []byte("world"))
	uploadMgr.EnqueuePut(uploadTx, 0, 5, b1)
	uploadTx.MarkLocalSaved(nil)
	require.Eventually(t, func() bool {
		return uploadTx.State() == transfer.StateFinished
	}, 2*time.Second, 10*time.Millisecond)
	uploadMgr.Stop()

	remoteKey := sha1Hex([]byte("world"))
	require.True(t, gw.Exists(remoteKey))

	downloadMgr := transfer.NewManager(gw, nil, transfer.Config{PutWorkers: 1, GetWorkers: 1, DeleteWorkers: 1, QueueSize: 8})
	downloadMgr.Start(ctx)
	defer downloadMgr.Stop()

	downloadTx := downloadMgr.BeginRead("/b.txt", 2, 1)

	downloadDir := t.TempDir()
	dlPath := filepath.Join(downloadDir, "down-chunk0")
	dlBlock, err := block.Open(dlPath, 5, nil, nil, block.DefaultConfig())
	require.NoError(t, err)

	downloadTx.PrepareDownloadChunk(0, 5, remoteKey, dlBlock)

	// ReadChunk hands back a fresh clone over the same downloaded file,
	// not the sink dlBlock itself, since the sink's seek cursor is already
	// exhausted after the GetWorker's write.
	fetched, err := downloadTx.ReadChunk(0)
	require.NoError(t, err)
	require.NotSame(t, dlBlock, fetched)
	require.Equal(t, dlBlock.Path(), fetched.Path())
}
