package catalog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"
)

// itemPaddingSize: item records are padded to a multiple of this many
// bytes to stabilize on-disk slot sizes under updates.
const itemPaddingSize = 128

const itemHeaderSize = 4 + 4 + 1 // block_size, item_size, item_type

// ItemType distinguishes a file entry from a directory entry.
type ItemType uint8

const (
	ItemTypeFile      ItemType = 0x0e
	ItemTypeDirectory ItemType = 0x0f
)

func (t ItemType) String() string {
	switch t {
	case ItemTypeFile:
		return "file"
	case ItemTypeDirectory:
		return "directory"
	default:
		return fmt.Sprintf("ItemType(0x%02x)", uint8(t))
	}
}

// itemTypeReserved marks an item-id slot that has been allocated by
// GenerateItemID but not yet turned into a real item by Append. It never
// appears in an Item returned to a caller.
const itemTypeReserved ItemType = 0xff

// ChunkRef locates one encrypted block within a file's logical byte
// stream. RemoteKey is nil until the block's first successful upload.
type ChunkRef struct {
	Seek         uint64
	ChunkSize    uint64
	RemoteKey    []byte
	ReplicaCount uint8
}

// Item is one entry in the directory tree — a File or a Directory.
type Item struct {
	ItemID         uint64
	ParentDirID    uint64
	Name           string
	Type           ItemType
	CreateDatetime time.Time
	ModifyDatetime time.Time
	IsLocal        bool // transient: never journaled, never persisted across a wipe

	// File-only fields; zero/nil for directories.
	Size   uint64
	Chunks []ChunkRef
}

func (i *Item) IsDirectory() bool { return i.Type == ItemTypeDirectory }
func (i *Item) IsFile() bool      { return i.Type == ItemTypeFile }

// itemPayload is the JSON-encoded body stored inside the padded item
// record.
type itemPayload struct {
	ParentDirID    uint64     `json:"parent_dir_id"`
	Name           string     `json:"name"`
	CreateDatetime time.Time  `json:"create_datetime"`
	ModifyDatetime time.Time  `json:"modify_datetime"`
	IsLocal        bool       `json:"is_local,omitempty"`
	Size           uint64     `json:"size,omitempty"`
	Chunks         []ChunkRef `json:"chunks,omitempty"`
}

func encodeItemPayload(item *Item) ([]byte, error) {
	return json.Marshal(itemPayload{
		ParentDirID:    item.ParentDirID,
		Name:           item.Name,
		CreateDatetime: item.CreateDatetime,
		ModifyDatetime: item.ModifyDatetime,
		IsLocal:        item.IsLocal,
		Size:           item.Size,
		Chunks:         item.Chunks,
	})
}

func decodeItemPayload(itemID uint64, itemType ItemType, buf []byte) (*Item, error) {
	var p itemPayload
	if err := json.Unmarshal(buf, &p); err != nil {
		return nil, fmt.Errorf("catalog: decode item %d payload: %w", itemID, err)
	}
	return &Item{
		ItemID:         itemID,
		ParentDirID:    p.ParentDirID,
		Name:           p.Name,
		Type:           itemType,
		CreateDatetime: p.CreateDatetime,
		ModifyDatetime: p.ModifyDatetime,
		IsLocal:        p.IsLocal,
		Size:           p.Size,
		Chunks:         p.Chunks,
	}, nil
}

// dumpItemRecord serializes item into the padded on-disk record format: a
// (block_size, item_size, item_type) header followed by the payload,
// space-padded to block_size.
func dumpItemRecord(item *Item) ([]byte, error) {
	payload, err := encodeItemPayload(item)
	if err != nil {
		return nil, err
	}
	itemSize := uint32(len(payload))
	blockSize := ceilToMultiple(itemHeaderSize+itemSize, itemPaddingSize)

	buf := make([]byte, blockSize)
	for i := range buf {
		buf[i] = ' '
	}
	binary.LittleEndian.PutUint32(buf[0:4], blockSize)
	binary.LittleEndian.PutUint32(buf[4:8], itemSize)
	buf[8] = byte(item.Type)
	copy(buf[itemHeaderSize:], payload)

	return buf, nil
}

// dumpReservedRecord writes the zero-payload sentinel record GenerateItemID
// uses to hold an item-id slot before Append turns it into a real item.
func dumpReservedRecord() []byte {
	buf := make([]byte, itemPaddingSize)
	binary.LittleEndian.PutUint32(buf[0:4], itemPaddingSize)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	buf[8] = byte(itemTypeReserved)
	for i := itemHeaderSize; i < len(buf); i++ {
		buf[i] = ' '
	}
	return buf
}

func readItemRecord(itemID uint64, buf []byte) (*Item, error) {
	if len(buf) < itemHeaderSize {
		return nil, fmt.Errorf("catalog: truncated item record %d", itemID)
	}
	itemSize := binary.LittleEndian.Uint32(buf[4:8])
	itemType := ItemType(buf[8])
	if itemType == itemTypeReserved {
		return nil, nil // reserved slot, not yet a real item
	}
	end := itemHeaderSize + int(itemSize)
	if end > len(buf) {
		return nil, fmt.Errorf("catalog: corrupt item record %d size", itemID)
	}
	return decodeItemPayload(itemID, itemType, buf[itemHeaderSize:end])
}
