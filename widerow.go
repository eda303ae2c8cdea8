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

package sieve

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	widerowCommitBatchSize = 1000
	widerowCommitPeriod    = 5 * time.Second
)

// WideRowConfig configures a WideRowBloomFilter.
type WideRowConfig struct {
	// InitialCapacity seeds the scalable filter. Zero selects
	// DefaultInitialCapacity.
	InitialCapacity uint64
	// ErrorRate is the compounded false-positive target. Zero selects
	// DefaultScalableErrorRate.
	ErrorRate float64
	// Expiration bounds the archived keys' lifetime.
	Expiration time.Duration
	// Name is the archive row identity.
	Name string
	// Archive holds the filter's backing wide row.
	Archive ArchiveStore
	// Shards spreads the row across this many physical rows. Zero or one
	// keeps a single row.
	Shards uint32
	// ShardFunc picks the shard for a key. Nil selects DefaultShardFunc.
	ShardFunc ShardFunc
	// Lazy defers the archive replay to the first Add instead of doing it
	// at construction.
	Lazy bool
	// Logger receives rebuild activity. Nil means slog.Default().
	Logger *slog.Logger
}

// archivedKey is one buffered archive write; the key's own timestamp
// corrects the batch TTL for delayed deliveries.
type archivedKey struct {
	key []byte
	ts  time.Time
}

// WideRowBloomFilter is a ScalableBloomFilter backed by an archive wide
// row. Every added key is appended to the row with a TTL, and the filter
// can rebuild itself from the row after a restart. Not safe for
// concurrent use.
type WideRowBloomFilter struct {
	name            string
	expiration      time.Duration
	initialCapacity uint64
	errorRate       float64

	bf      *ScalableBloomFilter
	archive ArchiveStore
	shards  uint32
	shardFn ShardFunc

	ready      bool
	pending    []archivedKey
	nextCommit time.Time

	logger *slog.Logger
}

// NewWideRowBloomFilter returns a filter per config. Unless Lazy is set,
// the archive row is replayed immediately.
func NewWideRowBloomFilter(config *WideRowConfig) (*WideRowBloomFilter, error) {
	if config.Archive == nil {
		return nil, errors.Wrap(ErrInvalidParameter, "archive must be set")
	}
	if config.Name == "" {
		return nil, errors.Wrap(ErrInvalidParameter, "name must be set")
	}
	if config.Expiration <= 0 {
		return nil, errors.Wrapf(ErrInvalidParameter, "expiration %v must be positive", config.Expiration)
	}
	w := &WideRowBloomFilter{
		name:            config.Name,
		expiration:      config.Expiration,
		initialCapacity: config.InitialCapacity,
		errorRate:       config.ErrorRate,
		archive:         config.Archive,
		shards:          config.Shards,
		shardFn:         config.ShardFunc,
		logger:          config.Logger,
	}
	if w.initialCapacity == 0 {
		w.initialCapacity = DefaultInitialCapacity
	}
	if w.errorRate == 0 {
		w.errorRate = DefaultScalableErrorRate
	}
	if w.shardFn == nil {
		w.shardFn = DefaultShardFunc
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if _, err := NewScalableBloomFilter(w.initialCapacity, w.errorRate); err != nil {
		return nil, err
	}
	if config.Lazy {
		w.bf, _ = NewScalableBloomFilter(w.initialCapacity, w.errorRate)
		return w, nil
	}
	if err := w.RebuildFromArchive(); err != nil {
		return nil, err
	}
	return w, nil
}

// rows lists the filter's physical row keys.
func (w *WideRowBloomFilter) rows() []string {
	if w.shards <= 1 {
		return []string{w.name}
	}
	out := make([]string, w.shards)
	for i := uint32(0); i < w.shards; i++ {
		out[i] = w.name + ":" + strconv.FormatUint(uint64(i), 10)
	}
	return out
}

func (w *WideRowBloomFilter) rowFor(key []byte) string {
	if w.shards <= 1 {
		return w.name
	}
	return w.name + ":" + strconv.FormatUint(uint64(w.shardFn(key, w.shards)), 10)
}

// Contains reports whether key is probably a member.
func (w *WideRowBloomFilter) Contains(key []byte) bool {
	return w.bf.Contains(key)
}

// Add archives key with its timestamp and inserts it, reporting whether it
// was already present. A zero ts means now. A lazily constructed filter
// replays the archive on its first Add.
func (w *WideRowBloomFilter) Add(key []byte, ts time.Time) (bool, error) {
	if !w.ready {
		if err := w.RebuildFromArchive(); err != nil {
			return false, err
		}
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	if err := w.archiveKey(key, ts); err != nil {
		return false, err
	}
	return w.bf.Add(key), nil
}

func (w *WideRowBloomFilter) archiveKey(key []byte, ts time.Time) error {
	w.pending = append(w.pending, archivedKey{key: append([]byte(nil), key...), ts: ts})
	if time.Now().After(w.nextCommit) || len(w.pending) >= widerowCommitBatchSize {
		return w.Flush()
	}
	return nil
}

// Flush commits buffered keys. One TTL is picked for each batch from its
// newest key, corrected for how long the key has been waiting; a batch
// whose lifetime is already spent is dropped rather than written.
func (w *WideRowBloomFilter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	ttl := w.expiration - time.Since(w.pending[len(w.pending)-1].ts)
	if ttl > 0 {
		batches := make(map[string][][]byte, w.shards)
		for _, ak := range w.pending {
			row := w.rowFor(ak.key)
			batches[row] = append(batches[row], ak.key)
		}
		for row, keys := range batches {
			if err := w.archive.Insert(row, keys, ttl); err != nil {
				return errors.Wrapf(ErrArchiveUnavailable, "insert %d keys into row %s: %v", len(keys), row, err)
			}
		}
	}
	w.pending = w.pending[:0]
	w.nextCommit = time.Now().Add(widerowCommitPeriod)
	return nil
}

// RebuildFromArchive re-initializes the scalable filter and replays every
// archived key into it. The initial capacity is provisioned from the
// current row count with headroom, so a rebuilt filter starts
// unfragmented.
func (w *WideRowBloomFilter) RebuildFromArchive() error {
	start := time.Now()
	var rowCount uint64
	for _, row := range w.rows() {
		err := w.archive.RangeIter(row, func([]byte) error {
			rowCount++
			return nil
		})
		if err != nil {
			return errors.Wrapf(ErrArchiveUnavailable, "count row %s: %v", row, err)
		}
	}
	capacity := w.initialCapacity
	if provisioned := rowCount + rowCount/2; provisioned > capacity {
		capacity = provisioned
	}
	bf, err := NewScalableBloomFilter(capacity, w.errorRate)
	if err != nil {
		return err
	}
	w.bf = bf
	for _, row := range w.rows() {
		err := w.archive.RangeIter(row, func(key []byte) error {
			w.bf.Add(key)
			return nil
		})
		if err != nil {
			return errors.Wrapf(ErrArchiveUnavailable, "replay row %s: %v", row, err)
		}
	}
	w.ready = true
	w.logger.Info("rebuild from archive completed", "filter", w.name,
		"keys", rowCount, "capacity", capacity, "seconds", time.Since(start).Seconds())
	return nil
}

// Ready reports whether the archive row has been replayed.
func (w *WideRowBloomFilter) Ready() bool { return w.ready }

// Capacity is the summed capacity of the underlying scalable filter.
func (w *WideRowBloomFilter) Capacity() uint64 { return w.bf.Capacity() }

// Len is the number of elements stored.
func (w *WideRowBloomFilter) Len() uint64 { return w.bf.Len() }
