package catalog

import (
	badger "github.com/dgraph-io/badger/v4"

	"github.com/fabnet/client/internal/logger"
	"github.com/fabnet/client/pkg/errs"
	"github.com/fabnet/client/pkg/journal"
)

// Append inserts item into the tree under item.ParentDirID. If
// item.ItemID is zero, a fresh id is allocated (consuming any prior
// GenerateItemID reservation is the caller's responsibility — passing a
// reserved id directly is also valid). Fails with ErrAlreadyExists if the
// (parent, name) pair or the item id is already taken.
func (c *Catalog) Append(item *Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(item, false)
}

func (c *Catalog) appendLocked(item *Item, fromReplay bool) error {
	if item.ItemID == 0 && !(item.ParentDirID == 0 && item.Name == "/") {
		id, err := c.allocateItemIDLocked()
		if err != nil {
			return err
		}
		item.ItemID = id
	}

	if item.CreateDatetime.IsZero() {
		item.CreateDatetime = nowUTC()
	}
	item.ModifyDatetime = item.CreateDatetime

	if existing, found, err := c.findChildID(item.ParentDirID, item.Name); err != nil {
		return err
	} else if found && existing != item.ItemID {
		return logOrSkip("catalog.Append", item.ItemID, errs.New("catalog.Append", item.Name, item.ItemID, errs.ErrAlreadyExists), fromReplay)
	}

	if _, err := c.loadItem(item.ItemID); err == nil {
		return logOrSkip("catalog.Append", item.ItemID, errs.New("catalog.Append", item.Name, item.ItemID, errs.ErrAlreadyExists), fromReplay)
	}

	record, err := dumpItemRecord(item)
	if err != nil {
		return err
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(itemKey(item.ItemID), record); err != nil {
			return err
		}

		own, _, err := c.loadAddressItemsTxn(txn, item.ParentDirID, item.Name)
		if err != nil {
			return err
		}
		own = own.withUpserted(childAddrList{itemID: item.ItemID})
		if err := c.saveAddressItems(txn, item.ParentDirID, item.Name, own); err != nil {
			return err
		}

		if item.ItemID != 0 {
			if err := c.addChildToParentTxn(txn, item.ParentDirID, item.ItemID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !item.IsLocal && !fromReplay {
		payload, err := encodeJournalItem(item)
		if err != nil {
			return err
		}
		if _, err := c.jnl.Append(journal.OpAppend, payload); err != nil {
			return err
		}
	}

	if item.ItemID > c.lastItemID {
		c.lastItemID = item.ItemID
	}

	logger.Debug("catalog append", logger.ItemID(item.ItemID), logger.ParentID(item.ParentDirID), logger.Name(item.Name))
	return nil
}

// addChildToParentTxn appends childID to parentID's own childAddrList
// record, looking parentID up first to find the (grandparent, name) slot
// its own record lives under. Root's parent is itself (ParentDirID==0,
// ItemID==0) so this also correctly threads through for top-level items.
func (c *Catalog) addChildToParentTxn(txn *badger.Txn, parentID, childID uint64) error {
	parent, err := c.loadItemTxn(txn, parentID)
	if err != nil {
		return err
	}
	own, _, err := c.loadAddressItemsTxn(txn, parent.ParentDirID, parent.Name)
	if err != nil {
		return err
	}
	rec, _ := own.find(parent.ItemID)
	rec.itemID = parent.ItemID
	rec.childIDs = append(rec.childIDs, childID)
	own = own.withUpserted(rec)
	return c.saveAddressItems(txn, parent.ParentDirID, parent.Name, own)
}

func (c *Catalog) removeChildFromParentTxn(txn *badger.Txn, parentID, childID uint64) error {
	parent, err := c.loadItemTxn(txn, parentID)
	if err != nil {
		return err
	}
	own, _, err := c.loadAddressItemsTxn(txn, parent.ParentDirID, parent.Name)
	if err != nil {
		return err
	}
	rec, ok := own.find(parent.ItemID)
	if !ok {
		return nil
	}
	filtered := rec.childIDs[:0:0]
	for _, id := range rec.childIDs {
		if id != childID {
			filtered = append(filtered, id)
		}
	}
	rec.childIDs = filtered
	own = own.withUpserted(rec)
	return c.saveAddressItems(txn, parent.ParentDirID, parent.Name, own)
}

// Update rewrites item's record. If its name or parent changed relative
// to the stored version, the address entries are rewritten too — the
// whole operation commits under the single catalog mutex, so readers
// never observe a half-moved item.
func (c *Catalog) Update(item *Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updateLocked(item, false)
}

func (c *Catalog) updateLocked(item *Item, fromReplay bool) error {
	existing, err := c.loadItem(item.ItemID)
	if err != nil {
		return logOrSkip("catalog.Update", item.ItemID, err, fromReplay)
	}

	item.ModifyDatetime = nowUTC()
	moved := existing.Name != item.Name || existing.ParentDirID != item.ParentDirID

	record, err := dumpItemRecord(item)
	if err != nil {
		return err
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		if moved {
			if err := c.removeChildFromParentTxn(txn, existing.ParentDirID, item.ItemID); err != nil {
				return err
			}
			oldOwn, _, err := c.loadAddressItemsTxn(txn, existing.ParentDirID, existing.Name)
			if err != nil {
				return err
			}
			oldRec, _ := oldOwn.find(item.ItemID)
			oldOwn, _ = oldOwn.withRemoved(item.ItemID)
			if err := c.saveAddressItems(txn, existing.ParentDirID, existing.Name, oldOwn); err != nil {
				return err
			}

			newOwn, _, err := c.loadAddressItemsTxn(txn, item.ParentDirID, item.Name)
			if err != nil {
				return err
			}
			newOwn = newOwn.withUpserted(childAddrList{itemID: item.ItemID, childIDs: oldRec.childIDs})
			if err := c.saveAddressItems(txn, item.ParentDirID, item.Name, newOwn); err != nil {
				return err
			}
			if err := c.addChildToParentTxn(txn, item.ParentDirID, item.ItemID); err != nil {
				return err
			}
		}
		return txn.Set(itemKey(item.ItemID), record)
	})
	if err != nil {
		return err
	}

	if !item.IsLocal && !fromReplay {
		payload, err := encodeJournalItem(item)
		if err != nil {
			return err
		}
		if _, err := c.jnl.Append(journal.OpUpdate, payload); err != nil {
			return err
		}
	}

	logger.Debug("catalog update", logger.ItemID(item.ItemID), logger.Name(item.Name))
	return nil
}

// Remove deletes item from the tree. Fails with ErrNotEmpty if item is a
// non-empty directory, or ErrNotFound if it does not exist.
func (c *Catalog) Remove(item *Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(item.ItemID, false)
}

func (c *Catalog) removeLocked(itemID uint64, fromReplay bool) error {
	existing, err := c.loadItem(itemID)
	if err != nil {
		return logOrSkip("catalog.Remove", itemID, err, fromReplay)
	}

	if existing.IsDirectory() {
		own, ok, err := c.loadAddressItems(existing.ParentDirID, existing.Name)
		if err != nil {
			return err
		}
		if ok {
			if rec, found := own.find(existing.ItemID); found && len(rec.childIDs) > 0 {
				return logOrSkip("catalog.Remove", itemID, errs.New("catalog.Remove", existing.Name, itemID, errs.ErrNotEmpty), fromReplay)
			}
		}
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		if err := c.removeChildFromParentTxn(txn, existing.ParentDirID, itemID); err != nil {
			return err
		}
		own, _, err := c.loadAddressItemsTxn(txn, existing.ParentDirID, existing.Name)
		if err != nil {
			return err
		}
		own, _ = own.withRemoved(itemID)
		if err := c.saveAddressItems(txn, existing.ParentDirID, existing.Name, own); err != nil {
			return err
		}
		return txn.Delete(itemKey(itemID))
	})
	if err != nil {
		return err
	}

	if !existing.IsLocal && !fromReplay {
		if _, err := c.jnl.Append(journal.OpRemove, encodeUint64(itemID)); err != nil {
			return err
		}
	}

	logger.Debug("catalog remove", logger.ItemID(itemID), logger.Name(existing.Name))
	return nil
}

// GenerateItemID reserves a fresh item id without creating an item,
// letting a caller stamp an in-flight upload with its eventual id before
// metadata is finalized.
func (c *Catalog) GenerateItemID() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocateItemIDLocked()
}

// CancelItemIDReserve releases a reservation made by GenerateItemID that
// was never turned into a real item (e.g. an aborted upload).
func (c *Catalog) CancelItemIDReserve(itemID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.db.Update(func(txn *badger.Txn) error {
		kv, err := txn.Get(itemKey(itemID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		isReserved := false
		err = kv.Value(func(val []byte) error {
			isReserved = len(val) > 8 && ItemType(val[8]) == itemTypeReserved
			return nil
		})
		if err != nil {
			return err
		}
		if !isReserved {
			return errs.New("catalog.CancelItemIDReserve", "", itemID, errs.ErrTransactionBad)
		}
		return txn.Delete(itemKey(itemID))
	})
}

func (c *Catalog) allocateItemIDLocked() (uint64, error) {
	start := c.lastItemID % c.maxItemID
	for i := uint64(0); i < c.maxItemID; i++ {
		candidate := ((start + i) % c.maxItemID) + 1

		var taken bool
		err := c.db.View(func(txn *badger.Txn) error {
			_, err := txn.Get(itemKey(candidate))
			if err == badger.ErrKeyNotFound {
				taken = false
				return nil
			}
			if err != nil {
				return err
			}
			taken = true
			return nil
		})
		if err != nil {
			return 0, err
		}
		if taken {
			continue
		}

		err = c.db.Update(func(txn *badger.Txn) error {
			return txn.Set(itemKey(candidate), dumpReservedRecord())
		})
		if err != nil {
			return 0, err
		}

		c.lastItemID = candidate
		return candidate, nil
	}
	return 0, errs.New("catalog.GenerateItemID", "", 0, errs.ErrNoFreeID)
}

func (c *Catalog) loadItemTxn(txn *badger.Txn, itemID uint64) (*Item, error) {
	kv, err := txn.Get(itemKey(itemID))
	if err == badger.ErrKeyNotFound {
		return nil, errs.New("catalog.loadItem", "", itemID, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var item *Item
	err = kv.Value(func(val []byte) error {
		parsed, err := readItemRecord(itemID, val)
		if err != nil {
			return err
		}
		item = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Catalog) loadAddressItemsTxn(txn *badger.Txn, parentID uint64, name string) (addressItems, bool, error) {
	kv, err := txn.Get(addrKey(parentID, name))
	if err == badger.ErrKeyNotFound {
		return addressItems{}, false, nil
	}
	if err != nil {
		return addressItems{}, false, err
	}
	var items addressItems
	err = kv.Value(func(val []byte) error {
		decoded, err := decodeAddressItems(val)
		if err != nil {
			return err
		}
		items = decoded
		return nil
	})
	return items, true, err
}
