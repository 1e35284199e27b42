package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/fabnet/client/internal/logger"
	"github.com/fabnet/client/pkg/journal"
)

// journalItem is the full reconstructable Item serialized into an
// OpAppend/OpUpdate journal record. IsLocal is never included — is_local
// items are never journaled in the first place.
type journalItem struct {
	ItemID         uint64     `json:"item_id"`
	ParentDirID    uint64     `json:"parent_dir_id"`
	Name           string     `json:"name"`
	Type           ItemType   `json:"type"`
	CreateDatetime string     `json:"create_datetime"`
	ModifyDatetime string     `json:"modify_datetime"`
	Size           uint64     `json:"size,omitempty"`
	Chunks         []ChunkRef `json:"chunks,omitempty"`
}

func encodeJournalItem(item *Item) ([]byte, error) {
	return json.Marshal(journalItem{
		ItemID:         item.ItemID,
		ParentDirID:    item.ParentDirID,
		Name:           item.Name,
		Type:           item.Type,
		CreateDatetime: item.CreateDatetime.Format(rfc3339nano),
		ModifyDatetime: item.ModifyDatetime.Format(rfc3339nano),
		Size:           item.Size,
		Chunks:         item.Chunks,
	})
}

const rfc3339nano = "2006-01-02T15:04:05.999999999Z07:00"

func decodeJournalItem(payload []byte) (*Item, error) {
	var j journalItem
	if err := json.Unmarshal(payload, &j); err != nil {
		return nil, fmt.Errorf("catalog: decode journal item: %w", err)
	}
	item := &Item{
		ItemID:      j.ItemID,
		ParentDirID: j.ParentDirID,
		Name:        j.Name,
		Type:        j.Type,
		Size:        j.Size,
		Chunks:      j.Chunks,
	}
	if t, err := time.Parse(rfc3339nano, j.CreateDatetime); err == nil {
		item.CreateDatetime = t
	}
	if t, err := time.Parse(rfc3339nano, j.ModifyDatetime); err == nil {
		item.ModifyDatetime = t
	}
	return item, nil
}

// recover runs the catalog's recovery sequence: compare the
// catalog's own last-seen journal key against the journal actually
// configured, wipe on mismatch, replay from the last acknowledged
// record, fall back to a full wipe-and-replay-from-zero if replay hits
// anything other than the tolerated skip conditions, then bootstrap the
// root directory if this is a genuinely fresh catalog.
func (c *Catalog) recover(journalKey []byte) error {
	storedKey, lastRecID, lastItemID, err := c.readBookkeeping()
	if err != nil {
		return err
	}

	if storedKey != nil && string(storedKey) != string(journalKey) {
		logger.Warn("catalog journal key mismatch, wiping local cache")
		if err := c.wipeLocked(); err != nil {
			return err
		}
		lastRecID, lastItemID = 0, 0
	}

	c.lastItemID = lastItemID

	if err := c.replayFrom(lastRecID + 1); err != nil {
		logger.Warn("catalog replay failed, wiping and retrying from scratch", logger.Err(err))
		if err := c.wipeLocked(); err != nil {
			return err
		}
		c.lastItemID = 0
		if err := c.replayFrom(1); err != nil {
			return fmt.Errorf("catalog: replay from scratch failed: %w", err)
		}
	}

	if _, err := c.loadItem(0); err != nil {
		root := &Item{ItemID: 0, ParentDirID: 0, Name: "/", Type: ItemTypeDirectory}
		if err := c.appendLocked(root, false); err != nil {
			return fmt.Errorf("catalog: bootstrap root: %w", err)
		}
	}

	return c.saveBookkeepingLocked()
}

func (c *Catalog) readBookkeeping() (storedKey []byte, lastRecID, lastItemID uint64, err error) {
	err = c.db.View(func(txn *badger.Txn) error {
		if item, getErr := txn.Get(bkJournalKey); getErr == nil {
			if vErr := item.Value(func(val []byte) error {
				storedKey = append([]byte(nil), val...)
				return nil
			}); vErr != nil {
				return vErr
			}
		} else if getErr != badger.ErrKeyNotFound {
			return getErr
		}

		if item, getErr := txn.Get(bkLastJournalRecID); getErr == nil {
			if vErr := item.Value(func(val []byte) error {
				lastRecID = decodeUint64(val)
				return nil
			}); vErr != nil {
				return vErr
			}
		} else if getErr != badger.ErrKeyNotFound {
			return getErr
		}

		if item, getErr := txn.Get(bkLastItemID); getErr == nil {
			if vErr := item.Value(func(val []byte) error {
				lastItemID = decodeUint64(val)
				return nil
			}); vErr != nil {
				return vErr
			}
		} else if getErr != badger.ErrKeyNotFound {
			return getErr
		}

		return nil
	})
	return storedKey, lastRecID, lastItemID, err
}

// wipeLocked drops every key in the badger store, used when the
// catalog's own bookkeeping proves the local cache belongs to a
// different journal (or is corrupt) and must be rebuilt from the
// journal alone.
func (c *Catalog) wipeLocked() error {
	return c.db.DropAll()
}

// replayFrom reapplies every journal record with id >= fromID, tolerating
// known skip conditions (AlreadyExists on APPEND, missing/non-empty on
// REMOVE) by routing through the same append/
// update/remove paths with fromReplay=true, which downgrades those
// specific errors to a logged skip instead of propagating them.
func (c *Catalog) replayFrom(fromID uint64) error {
	var replayErr error
	for rec := range c.jnl.Iter(fromID) {
		switch rec.Op {
		case journal.OpAppend:
			item, err := decodeJournalItem(rec.Payload)
			if err != nil {
				replayErr = err
				return replayErr
			}
			if err := c.appendLocked(item, true); err != nil {
				replayErr = err
				return replayErr
			}
		case journal.OpUpdate:
			item, err := decodeJournalItem(rec.Payload)
			if err != nil {
				replayErr = err
				return replayErr
			}
			if err := c.updateLocked(item, true); err != nil {
				replayErr = err
				return replayErr
			}
		case journal.OpRemove:
			itemID := decodeUint64(rec.Payload)
			if err := c.removeLocked(itemID, true); err != nil {
				replayErr = err
				return replayErr
			}
		default:
			replayErr = fmt.Errorf("catalog: unknown journal op %d at record %d", rec.Op, rec.ID)
			return replayErr
		}
	}
	return replayErr
}
