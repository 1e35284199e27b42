package catalog_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fabnet/client/pkg/catalog"
	"github.com/fabnet/client/pkg/errs"
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

func TestAppendFindListdir(t *testing.T) {
	c := openTestCatalog(t)

	file := &catalog.Item{ParentDirID: 0, Name: "a.txt", Type: catalog.ItemTypeFile, Size: 5}
	require.NoError(t, c.Append(file))
	require.NotZero(t, file.ItemID)

	found, err := c.Find("/a.txt")
	require.NoError(t, err)
	require.Equal(t, file.ItemID, found.ItemID)
	require.Equal(t, "a.txt", found.Name)

	children, err := c.Listdir("/")
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "a.txt", children[0].Name)

	require.True(t, c.Exists("/a.txt"))
	require.False(t, c.Exists("/missing.txt"))
}

func TestAppendDuplicateNameFails(t *testing.T) {
	c := openTestCatalog(t)

	first := &catalog.Item{ParentDirID: 0, Name: "dup.txt", Type: catalog.ItemTypeFile}
	require.NoError(t, c.Append(first))

	second := &catalog.Item{ParentDirID: 0, Name: "dup.txt", Type: catalog.ItemTypeFile}
	err := c.Append(second)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrAlreadyExists))
}

func TestRemoveNonEmptyDirectoryFails(t *testing.T) {
	c := openTestCatalog(t)

	dir := &catalog.Item{ParentDirID: 0, Name: "d", Type: catalog.ItemTypeDirectory}
	require.NoError(t, c.Append(dir))

	child := &catalog.Item{ParentDirID: dir.ItemID, Name: "x.txt", Type: catalog.ItemTypeFile}
	require.NoError(t, c.Append(child))

	err := c.Remove(dir)
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrNotEmpty))

	require.NoError(t, c.Remove(child))
	require.NoError(t, c.Remove(dir))
	require.False(t, c.Exists("/d"))
}

func TestUpdateRename(t *testing.T) {
	c := openTestCatalog(t)

	item := &catalog.Item{ParentDirID: 0, Name: "old.txt", Type: catalog.ItemTypeFile}
	require.NoError(t, c.Append(item))

	item.Name = "new.txt"
	require.NoError(t, c.Update(item))

	require.False(t, c.Exists("/old.txt"))
	found, err := c.Find("/new.txt")
	require.NoError(t, err)
	require.Equal(t, item.ItemID, found.ItemID)

	children, err := c.Listdir("/")
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "new.txt", children[0].Name)
}

func TestGenerateAndCancelItemIDReserve(t *testing.T) {
	c := openTestCatalog(t)

	id, err := c.GenerateItemID()
	require.NoError(t, err)
	require.NotZero(t, id)

	require.NoError(t, c.CancelItemIDReserve(id))

	item := &catalog.Item{ItemID: id, ParentDirID: 0, Name: "reserved.txt", Type: catalog.ItemTypeFile}
	require.NoError(t, c.Append(item))
	require.Equal(t, id, item.ItemID)
}

func TestRecoveryReplaysJournalAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := catalog.Config{
		DataDir:     filepath.Join(dir, "kv"),
		JournalPath: filepath.Join(dir, "ns.journal"),
		JournalKey:  []byte("test-namespace"),
	}

	c, err := catalog.Open(cfg)
	require.NoError(t, err)

	item := &catalog.Item{ParentDirID: 0, Name: "persisted.txt", Type: catalog.ItemTypeFile, Size: 3}
	require.NoError(t, c.Append(item))
	require.NoError(t, c.Close())

	reopened, err := catalog.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	found, err := reopened.Find("/persisted.txt")
	require.NoError(t, err)
	require.Equal(t, item.ItemID, found.ItemID)
	require.EqualValues(t, 3, found.Size)
}

func TestJournalKeyMismatchWipesLocalCache(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "ns.journal")
	kvDir := filepath.Join(dir, "kv")

	c, err := catalog.Open(catalog.Config{DataDir: kvDir, JournalPath: journalPath, JournalKey: []byte("ns-a")})
	require.NoError(t, err)
	require.NoError(t, c.Append(&catalog.Item{ParentDirID: 0, Name: "a.txt", Type: catalog.ItemTypeFile}))
	require.NoError(t, c.Close())

	otherJournalPath := filepath.Join(dir, "other.journal")
	reopened, err := catalog.Open(catalog.Config{DataDir: kvDir, JournalPath: otherJournalPath, JournalKey: []byte("ns-b")})
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	require.False(t, reopened.Exists("/a.txt"))
	children, err := reopened.Listdir("/")
	require.NoError(t, err)
	require.Empty(t, children)
}
