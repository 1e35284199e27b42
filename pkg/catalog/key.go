package catalog

import (
	"encoding/binary"
	"hash/adler32"
)

// Key types distinguish an item record from an address (name -> children)
// record sharing the same (parent_id, hash) key space.
const (
	ktAddr uint8 = 1
	ktItem uint8 = 2
)

// key is the (parent_id, item_hash, key_type) triple forming the KV
// store's key, serialized little-endian as u64+u32+u8 (13 bytes). For an
// item key, parentID is overloaded to carry the item_id instead — the
// struct shape is shared between both uses.
type key struct {
	parentID uint64
	itemHash uint32
	keyType  uint8
}

func (k key) encode() []byte {
	buf := make([]byte, 13)
	binary.LittleEndian.PutUint64(buf[0:8], k.parentID)
	binary.LittleEndian.PutUint32(buf[8:12], k.itemHash)
	buf[12] = k.keyType
	return buf
}

// hashName computes the Adler-32 digest of name's UTF-8 bytes, used as the
// item-hash component of an address key. Collisions are resolved by a
// linear scan of the resulting ChildAddrList records comparing names
// exactly (see address.go).
func hashName(name string) uint32 {
	return adler32.Checksum([]byte(name))
}

// itemKey returns the KV key holding itemID's padded item record.
func itemKey(itemID uint64) []byte {
	return key{parentID: itemID, itemHash: 0, keyType: ktItem}.encode()
}

// addrKey returns the KV key holding the AddressItems blob for every
// child of parentID whose name hashes to hashName(name).
func addrKey(parentID uint64, name string) []byte {
	return key{parentID: parentID, itemHash: hashName(name), keyType: ktAddr}.encode()
}
