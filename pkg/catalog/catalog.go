// Package catalog implements the Metadata Catalog (C4): a directory tree
// over an embedded KV store, journaled for recovery. Built around
// dgraph-io/badger/v4: transactional db.Update closures, small
// key-encoding helpers, JSON-encoded record payloads.
package catalog

import (
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/fabnet/client/internal/logger"
	"github.com/fabnet/client/pkg/errs"
	"github.com/fabnet/client/pkg/journal"
)

// Bookkeeping keys, stored as plain bytes rather than through the
// (parent_id, hash, type) key encoding.
var (
	bkLastItemID       = []byte("last_item_id")
	bkLastJournalRecID = []byte("last_journal_rec_id")
	bkJournalKey       = []byte("journal_key")
)

// defaultMaxItemID bounds the item-id allocator's wraparound space — a
// generous fixed bound well short of uint64 overflow so wraparound
// arithmetic (allocateItemIDLocked) never has to reason about it.
const defaultMaxItemID = uint64(1) << 40

// Config configures catalog Open.
type Config struct {
	// DataDir is the badger database directory.
	DataDir string
	// JournalPath is the on-disk path of this namespace's journal file.
	JournalPath string
	// JournalKey identifies the namespace this catalog belongs to.
	JournalKey []byte
	// MaxItemID bounds the item-id allocator. Zero means defaultMaxItemID.
	MaxItemID uint64
}

// Catalog is the recovered, ready-to-use directory tree for one namespace.
type Catalog struct {
	db  *badger.DB
	jnl *journal.Journal

	mu         sync.Mutex
	lastItemID uint64
	maxItemID  uint64
}

// Open opens (creating if necessary) the badger store at cfg.DataDir and
// the journal at cfg.JournalPath, then recovers the catalog: compare the
// catalog's own last-seen journal key against the journal actually
// configured, wipe on mismatch, replay from the last acknowledged
// record, and bootstrap the root directory if it has never been created.
func Open(cfg Config) (*Catalog, error) {
	if cfg.MaxItemID == 0 {
		cfg.MaxItemID = defaultMaxItemID
	}

	jnl, err := journal.Open(cfg.JournalPath, cfg.JournalKey)
	if err != nil {
		return nil, fmt.Errorf("catalog: open journal: %w", err)
	}

	db, err := openBadger(cfg.DataDir)
	if err != nil {
		jnl.Close()
		return nil, fmt.Errorf("catalog: open store: %w", err)
	}

	c := &Catalog{db: db, jnl: jnl, maxItemID: cfg.MaxItemID}

	if err := c.recover(cfg.JournalKey); err != nil {
		db.Close()
		jnl.Close()
		return nil, err
	}

	return c, nil
}

func openBadger(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	return badger.Open(opts)
}

// Close persists bookkeeping and closes the store and journal.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.saveBookkeepingLocked(); err != nil {
		return err
	}
	if err := c.db.Close(); err != nil {
		return err
	}
	return c.jnl.Close()
}

func (c *Catalog) saveBookkeepingLocked() error {
	return c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(bkLastItemID, encodeUint64(c.lastItemID)); err != nil {
			return err
		}
		if err := txn.Set(bkLastJournalRecID, encodeUint64(c.jnl.LastID())); err != nil {
			return err
		}
		return txn.Set(bkJournalKey, c.jnl.Key())
	})
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * uint(i)))
	}
	return buf
}

func decodeUint64(buf []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(buf); i++ {
		v |= uint64(buf[i]) << (8 * uint(i))
	}
	return v
}

// Find resolves a '/'-separated path to its item, walking the tree one
// segment at a time from root.
func (c *Catalog) Find(path string) (*Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findLocked(path)
}

func (c *Catalog) findLocked(path string) (*Item, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return c.loadItem(0)
	}

	parentID := uint64(0)
	var item *Item
	for _, seg := range segments {
		id, found, err := c.findChildID(parentID, seg)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errs.New("catalog.Find", path, 0, errs.ErrPathNotFound)
		}
		item, err = c.loadItem(id)
		if err != nil {
			return nil, err
		}
		parentID = id
	}
	return item, nil
}

// Exists reports whether path resolves to an item.
func (c *Catalog) Exists(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.findLocked(path)
	return err == nil
}

// Listdir returns path's children in insertion order. Fails if path does
// not resolve to a directory.
func (c *Catalog) Listdir(path string) ([]*Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dir, err := c.findLocked(path)
	if err != nil {
		return nil, err
	}
	if !dir.IsDirectory() {
		return nil, errs.New("catalog.Listdir", path, dir.ItemID, fmt.Errorf("not a directory"))
	}

	own, ok, err := c.loadAddressItems(dir.ParentDirID, dir.Name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	rec, ok := own.find(dir.ItemID)
	if !ok {
		return nil, nil
	}

	items := make([]*Item, 0, len(rec.childIDs))
	for _, id := range rec.childIDs {
		child, err := c.loadItem(id)
		if err != nil {
			return nil, err
		}
		items = append(items, child)
	}
	return items, nil
}

func splitPath(path string) []string {
	var segs []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				segs = append(segs, path[start:i])
			}
			start = i + 1
		}
	}
	return segs
}

// findChildID resolves (parentID, name) to an item id by scanning every
// childAddrList record colliding on hash(name), comparing names exactly.
func (c *Catalog) findChildID(parentID uint64, name string) (uint64, bool, error) {
	items, ok, err := c.loadAddressItems(parentID, name)
	if err != nil || !ok {
		return 0, false, err
	}
	for _, rec := range items.lists {
		item, err := c.loadItem(rec.itemID)
		if err != nil {
			return 0, false, err
		}
		if item.Name == name {
			return rec.itemID, true, nil
		}
	}
	return 0, false, nil
}

func (c *Catalog) loadItem(itemID uint64) (*Item, error) {
	var item *Item
	err := c.db.View(func(txn *badger.Txn) error {
		kvItem, err := txn.Get(itemKey(itemID))
		if err == badger.ErrKeyNotFound {
			return errs.New("catalog.loadItem", "", itemID, errs.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return kvItem.Value(func(val []byte) error {
			parsed, err := readItemRecord(itemID, val)
			if err != nil {
				return err
			}
			item = parsed
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, errs.New("catalog.loadItem", "", itemID, errs.ErrNotFound)
	}
	return item, nil
}

func (c *Catalog) loadAddressItems(parentID uint64, name string) (addressItems, bool, error) {
	var items addressItems
	found := false
	err := c.db.View(func(txn *badger.Txn) error {
		kvItem, err := txn.Get(addrKey(parentID, name))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return kvItem.Value(func(val []byte) error {
			decoded, err := decodeAddressItems(val)
			if err != nil {
				return err
			}
			items = decoded
			return nil
		})
	})
	return items, found, err
}

func (c *Catalog) saveAddressItems(txn *badger.Txn, parentID uint64, name string, items addressItems) error {
	if len(items.lists) == 0 {
		err := txn.Delete(addrKey(parentID, name))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	}
	return txn.Set(addrKey(parentID, name), items.encode())
}

func nowUTC() time.Time { return time.Now().UTC() }

func logOrSkip(op string, itemID uint64, err error, fromReplay bool) error {
	if fromReplay {
		logger.Warn("journal replay: skipping failed operation", logger.Err(err), logger.ItemID(itemID))
		return nil
	}
	return err
}
