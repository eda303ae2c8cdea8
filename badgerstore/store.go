/*
 * Copyright 2023 Dgraph Labs, Inc. and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package badgerstore backs the sieve ArchiveStore contract with an
// embedded Badger database. Each archived key becomes one Badger entry
// keyed "<row>\x00<key>" with an empty value, which makes writes
// idempotent on retry, and the row's TTL rides on each entry.
package badgerstore

import (
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// rowSep terminates the row key inside a Badger key. Row keys are logical
// strings ("<name>_<bucket>") and never contain a zero byte.
const rowSep = byte(0)

// Store is a Badger-backed archive.
type Store struct {
	db *badger.DB
}

// Open returns a store rooted at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "while opening badger at %s", path)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func rowPrefix(rowKey string) []byte {
	p := make([]byte, 0, len(rowKey)+1)
	p = append(p, rowKey...)
	return append(p, rowSep)
}

// Insert appends a batch of keys to the row. A zero TTL stores the batch
// without expiry.
func (s *Store) Insert(rowKey string, keys [][]byte, ttl time.Duration) error {
	prefix := rowPrefix(rowKey)
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			e := badger.NewEntry(append(append([]byte(nil), prefix...), key...), nil)
			if ttl > 0 {
				e = e.WithTTL(ttl)
			}
			if err := txn.SetEntry(e); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrapf(err, "while inserting %d keys into row %s", len(keys), rowKey)
}

// RangeIter streams every key in the row to fn.
func (s *Store) RangeIter(rowKey string, fn func(key []byte) error) error {
	prefix := rowPrefix(rowKey)
	err := s.db.View(func(txn *badger.Txn) error {
		opt := badger.DefaultIteratorOptions
		opt.PrefetchValues = false
		opt.Prefix = prefix
		it := txn.NewIterator(opt)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			if err := fn(k[len(prefix):]); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrapf(err, "while ranging over row %s", rowKey)
}

// Remove deletes the row and all its keys.
func (s *Store) Remove(rowKey string) error {
	err := s.db.DropPrefix(rowPrefix(rowKey))
	return errors.Wrapf(err, "while removing row %s", rowKey)
}
