package file

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/fabnet/client/internal/logger"
	"github.com/fabnet/client/pkg/block"
	"github.com/fabnet/client/pkg/catalog"
	"github.com/fabnet/client/pkg/errs"
	"github.com/fabnet/client/pkg/lock"
	"github.com/fabnet/client/pkg/security"
	"github.com/fabnet/client/pkg/transfer"
)

// Store is the entry point the rest of the module uses to turn a catalog
// path into a readable or writable byte stream: it wires a Catalog, a
// transfer Manager, and the security/locking primitives both of those
// already depend on, and is the thing a single File is opened from.
type Store struct {
	cfg Config

	cat *catalog.Catalog
	mgr *transfer.Manager
	sec security.Manager

	registry *lock.Registry
	blockCfg block.Config
}

// NewStore builds a Store. sec and registry may be nil, matching
// pkg/block.Open's own nil-tolerant contract (no encryption, no advisory
// locking, respectively).
func NewStore(cat *catalog.Catalog, mgr *transfer.Manager, sec security.Manager, registry *lock.Registry, blockCfg block.Config, cfg Config) *Store {
	if cfg.MaxDataBlockSize <= 0 {
		cfg.MaxDataBlockSize = 16 * 1024 * 1024
	}
	if cfg.ReplicaCount == 0 {
		cfg.ReplicaCount = 2
	}
	return &Store{cat: cat, mgr: mgr, sec: sec, registry: registry, blockCfg: blockCfg, cfg: cfg}
}

// isTmpFile reports whether path's basename matches one of the configured
// temp-file patterns, exempting it from the block-size cap — up to
// maxSize bytes — and from ever being uploaded to the gateway. A match's
// maxSize is returned so the caller can fall back to ordinary splitting
// if the file grows past it.
func (s *Store) isTmpFile(path string) (ok bool, maxSize int64) {
	base := filepath.Base(path)
	for _, p := range s.cfg.tmpPatterns() {
		if p.Re.MatchString(base) {
			return true, p.MaxSize
		}
	}
	return false, 0
}

// OpenWrite opens path for writing, replacing any existing content once
// the returned File is closed.
func (s *Store) OpenWrite(path string) (*File, error) {
	existingID := uint64(0)
	if existing, err := s.cat.Find(path); err == nil {
		existingID = existing.ItemID
	}
	isTmp, tmpMaxSize := s.isTmpFile(path)
	return &File{
		store:      s,
		path:       path,
		forWrite:   true,
		isTmp:      isTmp,
		tmpMaxSize: tmpMaxSize,
		existingID: existingID,
	}, nil
}

// OpenRead opens path for reading. The catalog lookup that proves path
// exists happens lazily, on the first Read call.
func (s *Store) OpenRead(path string) (*File, error) {
	return &File{store: s, path: path, forWrite: false}, nil
}

// newBlockFilePath mints a fresh local path for a data block belonging to
// transaction txID.
func (s *Store) newBlockFilePath(txID uint64) string {
	return filepath.Join(s.blockDir(), fmt.Sprintf("tx%d-%s.block", txID, uuid.NewString()))
}

func (s *Store) blockDir() string {
	if s.cfg.BlockDir != "" {
		return s.cfg.BlockDir
	}
	return "."
}

// saveEmptyFile records a zero-byte file directly in the catalog, short-
// circuiting the close-with-no-writes case past transaction machinery
// entirely.
func (s *Store) saveEmptyFile(path string, isLocal bool) error {
	existing, err := s.cat.Find(path)
	if err == nil {
		existing.Size = 0
		existing.Chunks = nil
		existing.IsLocal = isLocal
		return s.cat.Update(existing)
	}

	parentDirID, name, perr := s.resolveParent(path)
	if perr != nil {
		return perr
	}
	item := &catalog.Item{
		ParentDirID: parentDirID,
		Name:        name,
		Type:        catalog.ItemTypeFile,
		IsLocal:     isLocal,
	}
	return s.cat.Append(item)
}

// Remove deletes the item at path. A file's remote chunks are enqueued
// for deletion before the catalog entry is dropped; a non-empty directory
// fails with errs.ErrNotEmpty (from the catalog).
func (s *Store) Remove(path string) error {
	item, err := s.cat.Find(path)
	if err != nil {
		return err
	}
	if item.IsFile() && !item.IsLocal {
		for _, chunk := range item.Chunks {
			if len(chunk.RemoteKey) == 0 {
				continue
			}
			s.mgr.EnqueueDelete(string(chunk.RemoteKey), chunk.ReplicaCount)
		}
	}
	return s.cat.Remove(item)
}

// Mkdir creates an empty directory entry at path. The parent directory
// must already exist; path itself must not.
func (s *Store) Mkdir(path string) error {
	if _, err := s.cat.Find(path); err == nil {
		return errs.New("file.Mkdir", path, 0, errs.ErrAlreadyExists)
	}
	parentDirID, name, err := s.resolveParent(path)
	if err != nil {
		return err
	}
	return s.cat.Append(&catalog.Item{ParentDirID: parentDirID, Name: name, Type: catalog.ItemTypeDirectory})
}

// resolveParent splits path into its parent directory (which must already
// exist in the catalog) and its final path segment.
func (s *Store) resolveParent(path string) (parentDirID uint64, name string, err error) {
	dir, base := splitPath(path)
	if dir == "" {
		return 0, base, nil
	}
	parent, err := s.cat.Find(dir)
	if err != nil {
		return 0, "", errs.New("file.resolveParent", path, 0, err)
	}
	if !parent.IsDirectory() {
		return 0, "", errs.New("file.resolveParent", path, parent.ItemID, errs.ErrPathNotFound)
	}
	return parent.ItemID, base, nil
}

func splitPath(path string) (dir, base string) {
	trimmed := strings.TrimSuffix(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return "", trimmed
	}
	return trimmed[:idx], trimmed[idx+1:]
}

// commitWriteTransaction builds the item record from tx's accumulated
// chunk list and appends or updates it in the catalog — the dispatcher
// step that runs once every chunk of a LOCAL_SAVED transaction reaches
// DONE.
func (s *Store) commitWriteTransaction(tx *transfer.Transaction) {
	item, err := s.buildItemFromTransaction(tx)
	if err != nil {
		logger.Error("file: build item from transaction failed", logger.Path(tx.FilePath()), logger.TransactionID(tx.ID()), logger.Err(err))
		tx.Fail()
		return
	}

	if item.ItemID == 0 {
		err = s.cat.Append(item)
	} else {
		err = s.cat.Update(item)
	}
	if err != nil {
		logger.Error("file: commit to catalog failed", logger.Path(tx.FilePath()), logger.TransactionID(tx.ID()), logger.Err(err))
		tx.Fail()
		return
	}

	s.mgr.Forget(tx.ID())
	logger.Info("file write committed", logger.Path(tx.FilePath()), logger.TransactionID(tx.ID()))
}

func (s *Store) buildItemFromTransaction(tx *transfer.Transaction) (*catalog.Item, error) {
	var item *catalog.Item
	if existing, err := s.cat.Find(tx.FilePath()); err == nil {
		item = existing
	} else {
		parentDirID, name, perr := s.resolveParent(tx.FilePath())
		if perr != nil {
			return nil, perr
		}
		item = &catalog.Item{ItemID: tx.ItemID(), ParentDirID: parentDirID, Name: name, Type: catalog.ItemTypeFile}
	}

	item.IsLocal = tx.IsLocal()

	snapshots := tx.Chunks()
	chunks := make([]catalog.ChunkRef, 0, len(snapshots))
	var size uint64
	for _, cs := range snapshots {
		chunks = append(chunks, catalog.ChunkRef{
			Seek:         cs.Seek,
			ChunkSize:    cs.ChunkSize,
			RemoteKey:    []byte(cs.RemoteKey),
			ReplicaCount: tx.ReplicaCount(),
		})
		size += cs.ChunkSize
	}
	item.Chunks = chunks
	item.Size = size
	return item, nil
}
