package journal_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fabnet/client/pkg/errs"
	"github.com/fabnet/client/pkg/journal"
)

func TestAppendAssignsSequentialIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ns.journal")
	j, err := journal.Open(path, []byte("ns-1"))
	require.NoError(t, err)
	defer j.Close()

	id1, err := j.Append(journal.OpAppend, []byte("item-1"))
	require.NoError(t, err)
	require.EqualValues(t, 1, id1)

	id2, err := j.Append(journal.OpUpdate, []byte("item-1-renamed"))
	require.NoError(t, err)
	require.EqualValues(t, 2, id2)

	require.EqualValues(t, 2, j.LastID())
}

func TestIterYieldsFromID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ns.journal")
	j, err := journal.Open(path, []byte("ns-1"))
	require.NoError(t, err)
	defer j.Close()

	for i := 0; i < 5; i++ {
		_, err := j.Append(journal.OpAppend, []byte{byte(i)})
		require.NoError(t, err)
	}

	var ids []uint64
	for rec := range j.Iter(3) {
		ids = append(ids, rec.ID)
	}
	require.Equal(t, []uint64{3, 4, 5}, ids)
}

func TestReopenRecoversLastIDAndRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ns.journal")
	j, err := journal.Open(path, []byte("ns-1"))
	require.NoError(t, err)

	_, err = j.Append(journal.OpAppend, []byte("a"))
	require.NoError(t, err)
	_, err = j.Append(journal.OpAppend, []byte("b"))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	reopened, err := journal.Open(path, []byte("ns-1"))
	require.NoError(t, err)
	defer reopened.Close()

	require.EqualValues(t, 2, reopened.LastID())

	var payloads [][]byte
	for rec := range reopened.Iter(1) {
		payloads = append(payloads, rec.Payload)
	}
	require.Equal(t, [][]byte{[]byte("a"), []byte("b")}, payloads)
}

func TestOpenWithMismatchedKeyFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ns.journal")
	j, err := journal.Open(path, []byte("ns-1"))
	require.NoError(t, err)
	_, err = j.Append(journal.OpAppend, []byte("a"))
	require.NoError(t, err)
	require.NoError(t, j.Close())

	_, err = journal.Open(path, []byte("ns-2"))
	require.Error(t, err)
	require.True(t, errors.Is(err, errs.ErrTransactionBad))
}

func TestRemovePayloadIsRawItemID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ns.journal")
	j, err := journal.Open(path, []byte("ns-1"))
	require.NoError(t, err)
	defer j.Close()

	idBytes := []byte{0, 0, 0, 0, 0, 0, 0, 42}
	_, err = j.Append(journal.OpRemove, idBytes)
	require.NoError(t, err)

	var ops []journal.OpType
	for rec := range j.Iter(0) {
		ops = append(ops, rec.Op)
		require.Equal(t, idBytes, rec.Payload)
	}
	require.Equal(t, []journal.OpType{journal.OpRemove}, ops)
}
