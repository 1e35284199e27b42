package file_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fabnet/client/pkg/block"
	"github.com/fabnet/client/pkg/catalog"
	"github.com/fabnet/client/pkg/file"
	"github.com/fabnet/client/pkg/gateway/memory"
	"github.com/fabnet/client/pkg/security/aesgcm"
	"github.com/fabnet/client/pkg/transfer"
)

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()
	c, err := catalog.Open(catalog.Config{
		DataDir:     filepath.Join(dir, "kv"),
		JournalPath: filepath.Join(dir, "ns.journal"),
		JournalKey:  []byte("test-namespace"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func newTestStore(t *testing.T) (*file.Store, *catalog.Catalog, *memory.Gateway) {
	t.Helper()
	cat := openTestCatalog(t)
	gw := memory.New()

	sec, err := aesgcm.New(make([]byte, 32))
	require.NoError(t, err)

	mgr := transfer.NewManager(gw, sec, transfer.Config{PutWorkers: 2, GetWorkers: 2, DeleteWorkers: 1, QueueSize: 32})
	ctx, cancel := context.WithCancel(context.Background())
	mgr.Start(ctx)
	t.Cleanup(func() { cancel(); mgr.Stop() })

	store := file.NewStore(cat, mgr, sec, nil, block.DefaultConfig(), file.Config{
		MaxDataBlockSize: 16,
		ReplicaCount:     1,
		BlockDir:         t.TempDir(),
	})
	return store, cat, gw
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	store, cat, _ := newTestStore(t)

	f, err := store.OpenWrite("/hello.txt")
	require.NoError(t, err)
	require.NoError(t, f.Write([]byte("hello, distributed world!")))
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		item, err := cat.Find("/hello.txt")
		return err == nil && len(item.Chunks) > 0
	}, 2*time.Second, 10*time.Millisecond)

	item, err := cat.Find("/hello.txt")
	require.NoError(t, err)
	require.Equal(t, uint64(len("hello, distributed world!")), item.Size)
	require.False(t, item.IsLocal)

	r, err := store.OpenRead("/hello.txt")
	require.NoError(t, err)
	data, err := r.Read(0)
	require.NoError(t, err)
	require.Equal(t, "hello, distributed world!", string(data))
	require.NoError(t, r.Close())
}

func TestWriteSplitsAcrossMultipleBlocks(t *testing.T) {
	store, cat, gw := newTestStore(t)

	payload := make([]byte, 40) // three blocks at MaxDataBlockSize=16
	for i := range payload {
		payload[i] = byte('a' + i%26)
	}

	f, err := store.OpenWrite("/big.bin")
	require.NoError(t, err)
	require.NoError(t, f.Write(payload))
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		item, err := cat.Find("/big.bin")
		return err == nil && len(item.Chunks) == 3
	}, 2*time.Second, 10*time.Millisecond)

	item, err := cat.Find("/big.bin")
	require.NoError(t, err)
	require.Equal(t, uint64(40), item.Size)
	for _, c := range item.Chunks {
		require.True(t, gw.Exists(string(c.RemoteKey)))
	}

	r, err := store.OpenRead("/big.bin")
	require.NoError(t, err)
	data, err := r.Read(0)
	require.NoError(t, err)
	require.Equal(t, payload, data)
	require.NoError(t, r.Close())
}

func TestTmpFileNeverUploadedAndReadsBack(t *testing.T) {
	store, cat, gw := newTestStore(t)

	f, err := store.OpenWrite("/._swapfile")
	require.NoError(t, err)
	require.NoError(t, f.Write([]byte("scratch bytes")))
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		item, err := cat.Find("/._swapfile")
		return err == nil && item.IsLocal && len(item.Chunks) > 0
	}, 2*time.Second, 10*time.Millisecond)

	item, err := cat.Find("/._swapfile")
	require.NoError(t, err)
	require.True(t, item.IsLocal)
	require.False(t, gw.Exists(string(item.Chunks[0].RemoteKey)))

	r, err := store.OpenRead("/._swapfile")
	require.NoError(t, err)
	data, err := r.Read(0)
	require.NoError(t, err)
	require.Equal(t, "scratch bytes", string(data))
	require.NoError(t, r.Close())
}

func TestCloseEmptyFileSavesZeroByteItem(t *testing.T) {
	store, cat, _ := newTestStore(t)

	f, err := store.OpenWrite("/empty.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	item, err := cat.Find("/empty.txt")
	require.NoError(t, err)
	require.Equal(t, uint64(0), item.Size)
	require.Empty(t, item.Chunks)
}

func TestWriteAfterCloseFails(t *testing.T) {
	store, _, _ := newTestStore(t)

	f, err := store.OpenWrite("/x.txt")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	err = f.Write([]byte("too late"))
	require.Error(t, err)
}

func TestReadOnWriteOnlyFileFails(t *testing.T) {
	store, _, _ := newTestStore(t)

	f, err := store.OpenWrite("/y.txt")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Read(10)
	require.Error(t, err)
}
