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
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
)

// temporalCommitBatchSize is the archive write buffer size.
const temporalCommitBatchSize = 1000

// TemporalConfig configures a DailyTemporalBloomFilter.
type TemporalConfig struct {
	// Capacity is the number of distinct keys per retention window the
	// filter is sized for.
	Capacity uint64
	// ErrorRate is the target false-positive rate.
	ErrorRate float64
	// ExpirationDays is the retention window in days.
	ExpirationDays int
	// Name identifies the filter in snapshot file names and archive rows.
	Name string
	// SnapshotDir is where day snapshots are persisted.
	SnapshotDir string
	// Archive, when set, receives every added key for later rebuilds.
	Archive ArchiveStore
	// Keyspace namespaces the archive rows of filters sharing a backend.
	// Empty means rows are keyed by Name alone.
	Keyspace string
	// Logger receives maintenance activity. Nil means slog.Default().
	Logger *slog.Logger
	// Metrics enables activity counters on the instance.
	Metrics bool
}

// DailyTemporalBloomFilter approximates a sliding window of ExpirationDays
// days by unioning per-day bit-array snapshots.
//
// Queries run against bitsAll, the union over retained days. Insertions
// also land in bitsToday, which is what a day snapshot persists. On top of
// the filter's native false positives this coarse expiration adds false
// negatives at day boundaries; with uniformly distributed inserts the
// added error is on the order of 1/ExpirationDays. Not safe for
// concurrent use.
type DailyTemporalBloomFilter struct {
	capacity  uint64
	errorRate float64
	slices    uint64
	perSlice  uint64
	nbits     uint64

	bitsAll   *bitSlices
	bitsToday *bitSlices
	count     uint64
	scratch   []uint64

	name        string
	snapshotDir string
	expiration  int
	keyspace    string

	currentPeriod time.Time

	snapshotToLoad   []snapshotFile
	enumerated       bool
	ready            bool
	warmPeriod       float64
	nextSnapshotLoad time.Time

	archive ArchiveStore
	pending [][]byte

	logger *slog.Logger

	// Metrics holds activity counters when enabled in the config.
	Metrics *Metrics
}

// NewDailyTemporalBloomFilter returns a filter per config. The snapshot
// directory is created if missing. Restoring state from an empty directory
// is not an error; call Warm or RestoreFromDisk to load what is there.
func NewDailyTemporalBloomFilter(config *TemporalConfig) (*DailyTemporalBloomFilter, error) {
	k, mSlice, err := bloomParams(config.Capacity, config.ErrorRate)
	if err != nil {
		return nil, err
	}
	if config.ExpirationDays < 1 {
		return nil, errors.Wrapf(ErrInvalidParameter, "expiration of %d days must be positive", config.ExpirationDays)
	}
	if config.Name == "" {
		return nil, errors.Wrap(ErrInvalidParameter, "name must be set")
	}
	if err := os.MkdirAll(config.SnapshotDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "while creating snapshot dir %s", config.SnapshotDir)
	}
	f := &DailyTemporalBloomFilter{
		capacity:    config.Capacity,
		errorRate:   config.ErrorRate,
		slices:      k,
		perSlice:    mSlice,
		nbits:       k * mSlice,
		bitsAll:     newBitSlices(k, mSlice),
		bitsToday:   newBitSlices(k, mSlice),
		scratch:     make([]uint64, k),
		name:        config.Name,
		snapshotDir: config.SnapshotDir,
		expiration:  config.ExpirationDays,
		keyspace:    config.Keyspace,
		archive:     config.Archive,
		logger:      config.Logger,
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	if config.Metrics {
		f.Metrics = newMetrics()
	}
	f.InitializePeriod(time.Now())
	return f, nil
}

// InitializePeriod pins the filter's current period to the start of t's
// day.
func (f *DailyTemporalBloomFilter) InitializePeriod(t time.Time) {
	f.currentPeriod = dayStart(t)
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// retentionCutoff is the oldest retained day period.
func (f *DailyTemporalBloomFilter) retentionCutoff() time.Time {
	return f.currentPeriod.AddDate(0, 0, -(f.expiration - 1))
}

// Contains reports whether key is probably a member of the retained
// window.
func (f *DailyTemporalBloomFilter) Contains(key []byte) bool {
	return f.containsIdx(hashesInto(f.scratch, key, f.perSlice))
}

func (f *DailyTemporalBloomFilter) containsIdx(idx []uint64) bool {
	offset := uint64(0)
	for _, i := range idx {
		if !f.bitsAll.get(offset + i) {
			return false
		}
		offset += f.perSlice
	}
	return true
}

// Add inserts key and reports whether it was already present. Every call
// hands the key to the archive when one is configured, member or not, so
// replays stay idempotent.
func (f *DailyTemporalBloomFilter) Add(key []byte) (bool, error) {
	if f.archive != nil {
		if err := f.archiveKey(key); err != nil {
			return false, err
		}
	}
	return f.insert(key), nil
}

func (f *DailyTemporalBloomFilter) insert(key []byte) bool {
	idx := hashesInto(f.scratch, key, f.perSlice)
	if f.containsIdx(idx) {
		f.Metrics.add(keyTouch, idx[0], 1)
		return true
	}
	offset := uint64(0)
	for _, i := range idx {
		f.bitsAll.set(offset + i)
		f.bitsToday.set(offset + i)
		offset += f.perSlice
	}
	f.count++
	f.Metrics.add(keyAdd, idx[0], 1)
	return false
}

// archiveName is the row-key identity: the keyspace-qualified filter name.
func (f *DailyTemporalBloomFilter) archiveName() string {
	if f.keyspace == "" {
		return f.name
	}
	return f.keyspace + "." + f.name
}

func (f *DailyTemporalBloomFilter) hourRow(t time.Time) string {
	return f.archiveName() + "_" + t.Format(hourFormat)
}

// archiveKey buffers key for the archive and commits full batches.
func (f *DailyTemporalBloomFilter) archiveKey(key []byte) error {
	f.pending = append(f.pending, append([]byte(nil), key...))
	if len(f.pending) >= temporalCommitBatchSize {
		return f.Flush()
	}
	return nil
}

// Flush commits buffered keys to the archive under the current hour's row
// with the retention window as TTL.
func (f *DailyTemporalBloomFilter) Flush() error {
	if f.archive == nil || len(f.pending) == 0 {
		return nil
	}
	row := f.hourRow(time.Now())
	ttl := time.Duration(f.expiration) * 24 * time.Hour
	if err := f.archive.Insert(row, f.pending, ttl); err != nil {
		return errors.Wrapf(ErrArchiveUnavailable, "insert %d keys into row %s: %v", len(f.pending), row, err)
	}
	f.Metrics.add(archiveAppend, 0, uint64(len(f.pending)))
	f.pending = f.pending[:0]
	return nil
}

// Maintenance expires old days. Run it at the start of each day: it
// advances the period, clears both bit arrays and re-unions the retained
// day snapshots from disk.
func (f *DailyTemporalBloomFilter) Maintenance() error {
	f.InitializePeriod(time.Now())
	f.bitsAll.reset()
	f.bitsToday.reset()
	return f.RestoreFromDisk(false)
}

// RestoreFromDisk unions every retained day snapshot into the filter.
// Today's snapshot, when present, is also unioned into the current-day
// array. With cleanOldSnapshots set, files older than the retention window
// are deleted. An empty snapshot directory restores nothing and is not an
// error.
func (f *DailyTemporalBloomFilter) RestoreFromDisk(cleanOldSnapshots bool) error {
	files, err := listSnapshots(f.snapshotDir, f.name, f.expiration)
	if err != nil {
		return err
	}
	cutoff := f.retentionCutoff()
	for _, sf := range files {
		if sf.period.Before(cutoff) {
			if cleanOldSnapshots {
				if err := os.Remove(sf.path); err != nil {
					return errors.Wrapf(err, "while removing stale snapshot %s", sf.path)
				}
			}
			continue
		}
		if err := f.unionSnapshot(sf); err != nil {
			return err
		}
	}
	f.ready = true
	return nil
}

// unionSnapshot ORs one day snapshot into bitsAll, and into bitsToday as
// well when it is the current day's.
func (f *DailyTemporalBloomFilter) unionSnapshot(sf snapshotFile) error {
	nbits, words, err := readSnapshot(sf.path)
	if err != nil {
		return err
	}
	if nbits != f.nbits {
		return errors.Wrapf(ErrHeterogeneousSnapshot, "snapshot %s has %d bits, filter has %d", sf.path, nbits, f.nbits)
	}
	f.bitsAll.orWords(words)
	if sf.period.Equal(f.currentPeriod) {
		f.bitsToday.orWords(words)
	}
	f.Metrics.add(snapshotLoad, 0, 1)
	f.logger.Debug("snapshot loaded", "filter", f.name, "period", sf.period.Format(dayFormat))
	return nil
}

// SaveSnapshot persists the current day's bit array under
// <dir>/<name>_<expirationDays>_<YYYY-MM-DD>.dat.
func (f *DailyTemporalBloomFilter) SaveSnapshot() error {
	return f.saveSnapshotFor(f.currentPeriod)
}

func (f *DailyTemporalBloomFilter) saveSnapshotFor(period time.Time) error {
	path := snapshotPath(f.snapshotDir, f.name, f.expiration, period)
	if err := writeSnapshot(path, f.bitsToday); err != nil {
		return err
	}
	f.Metrics.add(snapshotSave, 0, 1)
	return nil
}

// Ready reports whether all retained snapshots have been warmed in.
func (f *DailyTemporalBloomFilter) Ready() bool { return f.ready }

// Warm loads at most one retained snapshot per call, so startup can
// spread disk reads over the day instead of hammering the disk when many
// workers restart at once. The first call enumerates the retained files
// and paces the loads to finish before end of day; each load schedules
// the next one warmPeriod*(1 + U[-r, +r]) later, where r is the
// jittering ratio. When the queue empties the filter becomes ready.
func (f *DailyTemporalBloomFilter) Warm(jitteringRatio float64) error {
	now := time.Now()
	if !f.enumerated {
		if err := f.enumerateSnapshots(now); err != nil {
			return err
		}
	}
	if len(f.snapshotToLoad) == 0 || now.Before(f.nextSnapshotLoad) {
		return nil
	}
	last := len(f.snapshotToLoad) - 1
	sf := f.snapshotToLoad[last]
	f.snapshotToLoad = f.snapshotToLoad[:last]
	if err := f.unionSnapshot(sf); err != nil {
		return err
	}
	jitter := 1.0 + (rand.Float64()*2-1)*jitteringRatio
	f.nextSnapshotLoad = now.Add(time.Duration(f.warmPeriod * jitter * float64(time.Second)))
	if len(f.snapshotToLoad) == 0 {
		f.ready = true
	}
	return nil
}

// WarmAll loads every remaining retained snapshot synchronously.
func (f *DailyTemporalBloomFilter) WarmAll() error {
	if !f.enumerated {
		if err := f.enumerateSnapshots(time.Now()); err != nil {
			return err
		}
	}
	for i := len(f.snapshotToLoad) - 1; i >= 0; i-- {
		if err := f.unionSnapshot(f.snapshotToLoad[i]); err != nil {
			return err
		}
	}
	f.snapshotToLoad = f.snapshotToLoad[:0]
	f.ready = true
	return nil
}

func (f *DailyTemporalBloomFilter) enumerateSnapshots(now time.Time) error {
	files, err := listSnapshots(f.snapshotDir, f.name, f.expiration)
	if err != nil {
		return err
	}
	cutoff := f.retentionCutoff()
	f.snapshotToLoad = f.snapshotToLoad[:0]
	for _, sf := range files {
		if !sf.period.Before(cutoff) {
			f.snapshotToLoad = append(f.snapshotToLoad, sf)
			f.ready = false
		}
	}
	f.enumerated = true
	remaining := dayStart(now).AddDate(0, 0, 1).Sub(now).Seconds()
	f.warmPeriod = remaining / float64(len(f.snapshotToLoad)+2)
	if len(f.snapshotToLoad) == 0 {
		f.ready = true
	}
	f.logger.Info("warm scheduled", "filter", f.name,
		"snapshots", len(f.snapshotToLoad), "period_seconds", f.warmPeriod)
	return nil
}

// RebuildFromArchive reconstructs both bit arrays from the archived keys
// of the retained window and regenerates each day's snapshot. It walks
// the 24 hourly rows of each retained day, oldest first, resetting the
// current-day array between days so each regenerated snapshot holds only
// its day's keys.
func (f *DailyTemporalBloomFilter) RebuildFromArchive() error {
	if f.archive == nil {
		return errors.Wrap(ErrArchiveUnavailable, "no archive configured")
	}
	start := time.Now()
	f.bitsAll.reset()
	f.bitsToday.reset()
	f.count = 0
	var replayed uint64
	for day := f.retentionCutoff(); !day.After(f.currentPeriod); day = day.AddDate(0, 0, 1) {
		f.bitsToday.reset()
		for hour := 0; hour < 24; hour++ {
			row := f.hourRow(day.Add(time.Duration(hour) * time.Hour))
			err := f.archive.RangeIter(row, func(key []byte) error {
				f.insert(key)
				replayed++
				return nil
			})
			if err != nil {
				return errors.Wrapf(ErrArchiveUnavailable, "range over row %s: %v", row, err)
			}
		}
		if err := f.saveSnapshotFor(day); err != nil {
			return err
		}
	}
	f.Metrics.add(archiveReplay, 0, replayed)
	f.ready = true
	f.logger.Info("rebuild from archive completed", "filter", f.name,
		"keys", replayed, "seconds", time.Since(start).Seconds())
	return nil
}

// DropArchive removes the retained window's hourly rows from the archive.
func (f *DailyTemporalBloomFilter) DropArchive() error {
	if f.archive == nil {
		return nil
	}
	now := time.Now()
	for t := f.retentionCutoff(); !t.After(now); t = t.Add(time.Hour) {
		row := f.hourRow(t)
		if err := f.archive.Remove(row); err != nil {
			return errors.Wrapf(ErrArchiveUnavailable, "remove row %s: %v", row, err)
		}
	}
	return nil
}

// Resize re-sizes the filter for a new capacity and/or error rate, passing
// zero to keep a parameter, and rebuilds its state from the archive.
func (f *DailyTemporalBloomFilter) Resize(capacity uint64, errorRate float64) error {
	if capacity == 0 {
		capacity = f.capacity
	}
	if errorRate == 0 {
		errorRate = f.errorRate
	}
	k, mSlice, err := bloomParams(capacity, errorRate)
	if err != nil {
		return err
	}
	f.capacity = capacity
	f.errorRate = errorRate
	f.slices = k
	f.perSlice = mSlice
	f.nbits = k * mSlice
	f.bitsAll = newBitSlices(k, mSlice)
	f.bitsToday = newBitSlices(k, mSlice)
	f.scratch = make([]uint64, k)
	return f.RebuildFromArchive()
}

// UnionCurrentDay ORs the other filter's current-day bits into this
// filter's main array.
func (f *DailyTemporalBloomFilter) UnionCurrentDay(other *DailyTemporalBloomFilter) error {
	return f.bitsAll.or(other.bitsToday)
}

// Count is the number of successful insertions since the filter was
// created or last rebuilt from the archive. Day rollovers do not reset it.
func (f *DailyTemporalBloomFilter) Count() uint64 { return f.count }

// Name is the filter identity used in snapshot files and archive rows.
func (f *DailyTemporalBloomFilter) Name() string { return f.name }

// CurrentPeriod is the start of the filter's current day.
func (f *DailyTemporalBloomFilter) CurrentPeriod() time.Time { return f.currentPeriod }

// NumBits is the size of each bit array.
func (f *DailyTemporalBloomFilter) NumBits() uint64 { return f.nbits }
