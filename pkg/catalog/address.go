package catalog

import (
	"encoding/binary"
	"fmt"
)

// addrPaddingSize: ChildAddrList blobs are padded to a multiple of this
// many bytes to stabilize on-disk slot sizes under updates.
const addrPaddingSize = 256

const addrHeaderSize = 4 + 4 + 8 // b_size, a_size, item_id

// childAddrList is the address-key record owned by exactly one item x
// living at this (parent, name-hash) slot: itemID is x itself, and
// childIDs is the set of x's own children when x is a directory (empty,
// and never grown, for a file). Several of these share one addrKey only
// when distinct sibling names collide on the same Adler-32 hash.
type childAddrList struct {
	itemID   uint64
	childIDs []uint64
}

func (c childAddrList) dump() []byte {
	aSize := uint32(addrHeaderSize + 8*len(c.childIDs))
	bSize := ceilToMultiple(aSize, addrPaddingSize)

	buf := make([]byte, bSize)
	binary.LittleEndian.PutUint32(buf[0:4], bSize)
	binary.LittleEndian.PutUint32(buf[4:8], aSize)
	binary.LittleEndian.PutUint64(buf[8:16], c.itemID)
	off := addrHeaderSize
	for _, id := range c.childIDs {
		binary.LittleEndian.PutUint64(buf[off:off+8], id)
		off += 8
	}
	return buf
}

// readChildAddrList parses one record starting at buf[0], returning the
// record and the number of bytes it (including padding) occupied.
func readChildAddrList(buf []byte) (childAddrList, int, error) {
	if len(buf) < addrHeaderSize {
		return childAddrList{}, 0, fmt.Errorf("catalog: truncated address record header")
	}
	bSize := binary.LittleEndian.Uint32(buf[0:4])
	aSize := binary.LittleEndian.Uint32(buf[4:8])
	itemID := binary.LittleEndian.Uint64(buf[8:16])
	if int(bSize) > len(buf) || aSize > bSize || aSize < addrHeaderSize {
		return childAddrList{}, 0, fmt.Errorf("catalog: corrupt address record sizes")
	}

	childCount := (aSize - addrHeaderSize) / 8
	children := make([]uint64, 0, childCount)
	off := addrHeaderSize
	for i := uint32(0); i < childCount; i++ {
		children = append(children, binary.LittleEndian.Uint64(buf[off:off+8]))
		off += 8
	}

	return childAddrList{itemID: itemID, childIDs: children}, int(bSize), nil
}

// addressItems is the full value stored under one addrKey: the
// concatenation of every childAddrList colliding on that (parent,
// name-hash) pair.
type addressItems struct {
	lists []childAddrList
}

func decodeAddressItems(buf []byte) (addressItems, error) {
	var items addressItems
	for len(buf) > 0 {
		list, n, err := readChildAddrList(buf)
		if err != nil {
			return addressItems{}, err
		}
		items.lists = append(items.lists, list)
		buf = buf[n:]
	}
	return items, nil
}

func (a addressItems) encode() []byte {
	var out []byte
	for _, l := range a.lists {
		out = append(out, l.dump()...)
	}
	return out
}

// find returns the record owned by itemID, if any.
func (a addressItems) find(itemID uint64) (childAddrList, bool) {
	for _, l := range a.lists {
		if l.itemID == itemID {
			return l, true
		}
	}
	return childAddrList{}, false
}

// withUpserted returns a copy of a with itemID's record replaced by list
// (or appended, if itemID had no record yet).
func (a addressItems) withUpserted(list childAddrList) addressItems {
	out := addressItems{lists: make([]childAddrList, 0, len(a.lists)+1)}
	replaced := false
	for _, l := range a.lists {
		if l.itemID == list.itemID {
			out.lists = append(out.lists, list)
			replaced = true
			continue
		}
		out.lists = append(out.lists, l)
	}
	if !replaced {
		out.lists = append(out.lists, list)
	}
	return out
}

// withRemoved returns a copy of a with itemID's record dropped, and
// reports whether anything was removed.
func (a addressItems) withRemoved(itemID uint64) (addressItems, bool) {
	out := addressItems{lists: make([]childAddrList, 0, len(a.lists))}
	removed := false
	for _, l := range a.lists {
		if l.itemID == itemID {
			removed = true
			continue
		}
		out.lists = append(out.lists, l)
	}
	return out, removed
}

func ceilToMultiple(n, multiple uint32) uint32 {
	return ((n + multiple - 1) / multiple) * multiple
}
