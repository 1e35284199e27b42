// Package journal implements the Journal (C3): an append-only,
// crash-recoverable log of metadata operations keyed to a namespace. It is
// authoritative for recovery — the catalog's KV store is only a cache of
// state derived by replaying this log from scratch.
//
// The on-disk layout is a fixed magic+version header followed by a
// sequence of framed, length-prefixed entries, appended to a plain
// os.File rather than an mmap-and-grow file, since the journal here
// never needs random-access rewrites — every record, once written, is
// immutable.
package journal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fabnet/client/pkg/errs"
)

const (
	magic        = "FBJL"
	version      = uint16(1)
	headerSize   = 4 + 2 + 2 // magic + version + key length (key bytes follow)
	recordHeader = 8 + 1 + 4 // record_id + op + payload length
)

// OpType is the kind of mutation a record represents.
type OpType uint8

const (
	// OpAppend records a new item entering the catalog.
	OpAppend OpType = iota + 1
	// OpUpdate records an existing item's address or metadata changing.
	OpUpdate
	// OpRemove records an item leaving the catalog. Its payload is just
	// the 8-byte item id, not a full serialized item.
	OpRemove
)

func (op OpType) String() string {
	switch op {
	case OpAppend:
		return "APPEND"
	case OpUpdate:
		return "UPDATE"
	case OpRemove:
		return "REMOVE"
	default:
		return fmt.Sprintf("OpType(%d)", op)
	}
}

// Record is one journal entry. Payload is a serialized item for
// OpAppend/OpUpdate, or a raw 8-byte item id for OpRemove (the catalog
// writes it little-endian) —
// the journal itself never interprets it, leaving item encoding to the
// catalog.
type Record struct {
	ID      uint64
	Op      OpType
	Payload []byte
}

// Journal is an append-only log bound to one file and one namespace key.
type Journal struct {
	mu  sync.Mutex
	f   *os.File
	key []byte

	lastID uint64
}

// Open opens (or creates) the journal file at path for namespace key.
// If the file already exists its stored key must match key exactly —
// a mismatch means this file belongs to a different namespace and is
// returned as errs.ErrTransactionBad-wrapped corruption, leaving the
// caller (the catalog) to decide whether to wipe and start over.
func Open(path string, key []byte) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("journal: stat %s: %w", path, err)
	}

	j := &Journal{f: f, key: key}

	if info.Size() == 0 {
		if err := j.writeHeader(key); err != nil {
			f.Close()
			return nil, err
		}
		return j, nil
	}

	storedKey, lastID, err := readHeaderAndScan(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if string(storedKey) != string(key) {
		f.Close()
		return nil, errs.New("journal.Open", path, 0, fmt.Errorf("%w: journal key mismatch", errs.ErrTransactionBad))
	}
	j.lastID = lastID

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("journal: seek end %s: %w", path, err)
	}

	return j, nil
}

func (j *Journal) writeHeader(key []byte) error {
	buf := make([]byte, headerSize+len(key))
	copy(buf[0:4], magic)
	binary.BigEndian.PutUint16(buf[4:6], version)
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(key)))
	copy(buf[8:], key)
	if _, err := j.f.Write(buf); err != nil {
		return fmt.Errorf("journal: write header: %w", err)
	}
	return j.f.Sync()
}

// readHeaderAndScan reads the header and walks every record to recover
// the stored journal key and the highest record id written so far.
func readHeaderAndScan(f *os.File) (key []byte, lastID uint64, err error) {
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("journal: seek start: %w", err)
	}

	r := bufio.NewReader(f)
	hdr := make([]byte, headerSize)
	if _, err = io.ReadFull(r, hdr); err != nil {
		return nil, 0, fmt.Errorf("journal: read header: %w", err)
	}
	if string(hdr[0:4]) != magic {
		return nil, 0, fmt.Errorf("journal: bad magic %q", hdr[0:4])
	}
	gotVersion := binary.BigEndian.Uint16(hdr[4:6])
	if gotVersion != version {
		return nil, 0, fmt.Errorf("journal: unsupported version %d", gotVersion)
	}
	keyLen := binary.BigEndian.Uint16(hdr[6:8])
	key = make([]byte, keyLen)
	if _, err = io.ReadFull(r, key); err != nil {
		return nil, 0, fmt.Errorf("journal: read journal key: %w", err)
	}

	for {
		rec, recErr := readRecord(r)
		if recErr == io.EOF {
			break
		}
		if recErr != nil {
			return nil, 0, recErr
		}
		lastID = rec.ID
	}

	return key, lastID, nil
}

func readRecord(r io.Reader) (Record, error) {
	hdr := make([]byte, recordHeader)
	if _, err := io.ReadFull(r, hdr); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	rec := Record{
		ID: binary.BigEndian.Uint64(hdr[0:8]),
		Op: OpType(hdr[8]),
	}
	payloadLen := binary.BigEndian.Uint32(hdr[9:13])
	if payloadLen > 0 {
		rec.Payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, rec.Payload); err != nil {
			return Record{}, fmt.Errorf("journal: truncated record %d: %w", rec.ID, err)
		}
	}
	return rec, nil
}

// Append writes a new record with the next sequential id and returns it.
func (j *Journal) Append(op OpType, payload []byte) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := j.lastID + 1

	buf := make([]byte, recordHeader+len(payload))
	binary.BigEndian.PutUint64(buf[0:8], id)
	buf[8] = byte(op)
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(payload)))
	copy(buf[recordHeader:], payload)

	if _, err := j.f.Write(buf); err != nil {
		return 0, fmt.Errorf("journal: append: %w", err)
	}
	if err := j.f.Sync(); err != nil {
		return 0, fmt.Errorf("journal: sync: %w", err)
	}

	j.lastID = id
	return id, nil
}

// Iter returns a range-over-func iterator yielding every record with
// ID >= fromID, in ascending ID order. A read error ends the walk early
// and is not reported to the caller.
func (j *Journal) Iter(fromID uint64) func(yield func(Record) bool) {
	return func(yield func(Record) bool) {
		j.mu.Lock()
		f, err := os.Open(j.f.Name())
		j.mu.Unlock()
		if err != nil {
			return
		}
		defer f.Close()

		r := bufio.NewReader(f)
		hdr := make([]byte, headerSize)
		if _, err := io.ReadFull(r, hdr); err != nil {
			return
		}
		keyLen := binary.BigEndian.Uint16(hdr[6:8])
		if _, err := io.CopyN(io.Discard, r, int64(keyLen)); err != nil {
			return
		}

		for {
			rec, err := readRecord(r)
			if err != nil {
				return
			}
			if rec.ID < fromID {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// LastID returns the highest record id written so far (0 if empty).
func (j *Journal) LastID() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastID
}

// Key returns the namespace key this journal was opened with.
func (j *Journal) Key() []byte {
	return j.key
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
