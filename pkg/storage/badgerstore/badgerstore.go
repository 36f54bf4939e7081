// Package badgerstore is a storage.Backend on an embedded badger database.
//
// Keys are "tle/<id:05d>/" followed by the epoch as 8 big-endian bytes of
// unix seconds with the sign bit flipped, so that a prefix seek walks one
// satellite's records in epoch order, pre-1970 epochs included. Values are
// line1 "\n" line2, the epoch in the key is only a read optimization and is
// checked against line1.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/pmkol/tlesync/pkg/storage"
	"github.com/pmkol/tlesync/pkg/tle"
)

const keyPrefix = "tle/"

type BadgerStore struct {
	db *badger.DB
}

var _ storage.Backend = (*BadgerStore)(nil)

// New opens (or creates) a database in dir. An empty dir opens an in-memory
// database, which is only useful for tests.
func New(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if len(dir) == 0 {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &storage.IOError{Op: "open", Path: dir, Err: err}
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func idPrefix(id int) []byte {
	return []byte(fmt.Sprintf("%s%05d/", keyPrefix, id))
}

// prefixEnd returns the smallest key greater than every key starting with p.
// p ends with '/', so the increment never carries.
func prefixEnd(p []byte) []byte {
	end := slices.Clone(p)
	end[len(end)-1]++
	return end
}

func recordKey(id int, epoch time.Time) []byte {
	return binary.BigEndian.AppendUint64(idPrefix(id), uint64(epoch.Unix())^(1<<63))
}

func parseKey(k []byte) (int, time.Time, error) {
	rest, ok := bytes.CutPrefix(k, []byte(keyPrefix))
	if !ok {
		return 0, time.Time{}, fmt.Errorf("unexpected key %q", k)
	}
	idStr, ts, ok := bytes.Cut(rest, []byte("/"))
	if !ok || len(ts) != 8 {
		return 0, time.Time{}, fmt.Errorf("unexpected key %q", k)
	}
	id, err := strconv.Atoi(string(idStr))
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("unexpected key %q: %w", k, err)
	}
	unix := int64(binary.BigEndian.Uint64(ts) ^ (1 << 63))
	return id, time.Unix(unix, 0).UTC(), nil
}

func (s *BadgerStore) Exists(_ context.Context, id int, epoch time.Time) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(recordKey(id, epoch))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, &storage.IOError{Op: "get", Path: fmt.Sprintf("%q", recordKey(id, epoch)), Err: err}
	}
}

func (s *BadgerStore) Add(_ context.Context, r tle.Record) error {
	id, err := tle.ParseCatalogID(r.Line1)
	if err != nil {
		return err
	}
	epoch, err := tle.ParseEpoch(r.Line1)
	if err != nil {
		return err
	}
	k := recordKey(id, epoch)
	v := []byte(tle.Truncate(r.Line1) + "\n" + tle.Truncate(r.Line2))
	if err := s.db.Update(func(txn *badger.Txn) error { return txn.Set(k, v) }); err != nil {
		return &storage.IOError{Op: "set", Path: fmt.Sprintf("%q", k), Err: err}
	}
	return nil
}

func (s *BadgerStore) GetRange(_ context.Context, id int, start, end time.Time) ([]tle.Record, error) {
	var out []tle.Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = idPrefix(id)
		it := txn.NewIterator(opts)
		defer it.Close()

		endKey := recordKey(id, end)
		for it.Seek(recordKey(id, start)); it.Valid(); it.Next() {
			item := it.Item()
			if bytes.Compare(item.Key(), endKey) > 0 {
				break
			}
			_, epoch, err := parseKey(item.KeyCopy(nil))
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			line1, line2, _ := strings.Cut(string(v), "\n")
			r, err := tle.NewRecord("", line1, line2)
			if err != nil {
				return err
			}
			if !r.Epoch().Equal(epoch) {
				return &tle.FormatError{Field: "key", Input: fmt.Sprintf("%q", item.Key()), Reason: "does not match the element set"}
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		var fe *tle.FormatError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &storage.IOError{Op: "scan", Path: string(idPrefix(id)), Err: err}
	}
	return out, nil
}

func (s *BadgerStore) Remove(_ context.Context, id int, epoch time.Time) error {
	k := recordKey(id, epoch)
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(k); err != nil {
			return err
		}
		return txn.Delete(k)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("%05d at %s: %w", id, epoch.UTC().Format(time.DateTime), storage.ErrNotFound)
	default:
		return &storage.IOError{Op: "delete", Path: fmt.Sprintf("%q", k), Err: err}
	}
}

// IDs walks the key space jumping from one id prefix to the next.
// The result is sorted numerically.
func (s *BadgerStore) IDs(_ context.Context) ([]int, error) {
	var ids []int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(keyPrefix)); it.Valid(); {
			id, _, err := parseKey(it.Item().KeyCopy(nil))
			if err != nil {
				return err
			}
			ids = append(ids, id)
			it.Seek(prefixEnd(idPrefix(id)))
		}
		return nil
	})
	if err != nil {
		return nil, &storage.IOError{Op: "scan", Path: keyPrefix, Err: err}
	}
	// ids wider than five digits break the lexical order of the key space.
	slices.Sort(ids)
	return ids, nil
}
