package catalog

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func TestChildAddrListDumpRoundTrip(t *testing.T) {
	list := childAddrList{itemID: 42, childIDs: []uint64{1, 2, 3}}
	buf := list.dump()

	require.Zero(t, len(buf)%addrPaddingSize)

	decoded, n, err := readChildAddrList(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)

	if diff := cmp.Diff(list, decoded, cmp.AllowUnexported(childAddrList{}), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestAddressItemsDumpRoundTrip(t *testing.T) {
	items := addressItems{lists: []childAddrList{
		{itemID: 1, childIDs: nil},
		{itemID: 2, childIDs: []uint64{10, 20}},
	}}

	buf := items.encode()
	decoded, err := decodeAddressItems(buf)
	require.NoError(t, err)

	if diff := cmp.Diff(items, decoded, cmp.AllowUnexported(addressItems{}, childAddrList{}), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestAddressItemsUpsertAndRemove(t *testing.T) {
	var items addressItems
	items = items.withUpserted(childAddrList{itemID: 1})
	items = items.withUpserted(childAddrList{itemID: 2, childIDs: []uint64{5}})

	rec, ok := items.find(2)
	require.True(t, ok)
	require.Equal(t, []uint64{5}, rec.childIDs)

	items = items.withUpserted(childAddrList{itemID: 2, childIDs: []uint64{5, 6}})
	rec, ok = items.find(2)
	require.True(t, ok)
	require.Equal(t, []uint64{5, 6}, rec.childIDs)

	items, removed := items.withRemoved(1)
	require.True(t, removed)
	_, ok = items.find(1)
	require.False(t, ok)
}

func TestItemRecordPaddingMultipleOf128(t *testing.T) {
	item := &Item{ItemID: 7, ParentDirID: 0, Name: "file.txt", Type: ItemTypeFile, Size: 100}
	buf, err := dumpItemRecord(item)
	require.NoError(t, err)
	require.Zero(t, len(buf)%itemPaddingSize)

	decoded, err := readItemRecord(7, buf)
	require.NoError(t, err)
	require.Equal(t, item.Name, decoded.Name)
	require.Equal(t, item.Size, decoded.Size)
	require.Equal(t, item.Type, decoded.Type)
}
