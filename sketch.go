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
	"math"
	"sort"

	"github.com/pkg/errors"
)

// topPair is one heavy-hitter candidate. Ordering is lexicographic on
// (estimate, key) so ties produce deterministic output.
type topPair struct {
	estimate int64
	key      string
}

func (p topPair) Less(other *topPair) bool {
	if p.estimate != other.estimate {
		return p.estimate < other.estimate
	}
	return p.key < other.key
}

// TopEntry is one entry of the sketch's heavy-hitter set.
type TopEntry struct {
	Key      string
	Estimate int64
}

// CountMinSketch is a d x w matrix of signed counters with an integrated
// top-K min-heap, sized as w = ceil(e/epsilon), d = ceil(ln(1/delta)).
// Estimates never undercount: get(k) >= true_count(k), and the
// overcount is bounded by epsilon * total updates with probability
// 1 - delta. Not safe for concurrent use.
type CountMinSketch struct {
	depth   uint64
	width   uint64
	rows    [][]int64
	k       int
	heap    *MinHeap[topPair]
	topK    map[string]*topPair
	scratch []uint64
}

// NewCountMinSketch returns a sketch with failure probability delta,
// additive error factor epsilon, and a heavy-hitter set of size k.
func NewCountMinSketch(delta, epsilon float64, k int) (*CountMinSketch, error) {
	if delta <= 0 || delta >= 1 {
		return nil, errors.Wrapf(ErrInvalidParameter, "delta %v outside (0, 1)", delta)
	}
	if epsilon <= 0 || epsilon >= 1 {
		return nil, errors.Wrapf(ErrInvalidParameter, "epsilon %v outside (0, 1)", epsilon)
	}
	if k < 0 {
		return nil, errors.Wrapf(ErrInvalidParameter, "top-k size %d is negative", k)
	}
	width := uint64(math.Ceil(math.E / epsilon))
	depth := uint64(math.Ceil(math.Log(1.0 / delta)))
	if depth < 1 {
		depth = 1
	}
	rows := make([][]int64, depth)
	for i := range rows {
		rows[i] = make([]int64, width)
	}
	return &CountMinSketch{
		depth:   depth,
		width:   width,
		rows:    rows,
		k:       k,
		heap:    NewMinHeap[topPair](),
		topK:    make(map[string]*topPair, k),
		scratch: make([]uint64, depth),
	}, nil
}

// Update adds delta to key's counters and refreshes the top-K set. It
// returns the key evicted from the set, if any.
func (s *CountMinSketch) Update(key []byte, delta int64) (string, bool) {
	for row, col := range hashesInto(s.scratch, key, s.width) {
		s.rows[row][col] += delta
	}
	return s.updateTopK(key)
}

// Get returns the estimated count for key: the minimum counter across all
// rows.
func (s *CountMinSketch) Get(key []byte) int64 {
	min := int64(math.MaxInt64)
	for row, col := range hashesInto(s.scratch, key, s.width) {
		if v := s.rows[row][col]; v < min {
			min = v
		}
	}
	return min
}

func (s *CountMinSketch) updateTopK(key []byte) (string, bool) {
	estimate := s.Get(key)
	keyStr := string(key)
	if pair, ok := s.topK[keyStr]; ok {
		pair.estimate = estimate
		s.heap.Fix()
		return "", false
	}
	pair := &topPair{estimate: estimate, key: keyStr}
	if len(s.topK) < s.k {
		s.heap.Insert(pair)
		s.topK[keyStr] = pair
		return "", false
	}
	evicted := s.heap.PushPop(pair)
	if _, ok := s.topK[evicted.key]; ok {
		delete(s.topK, evicted.key)
		s.topK[keyStr] = pair
	}
	return evicted.key, true
}

// Top returns the heavy-hitter set ordered by descending (estimate, key).
func (s *CountMinSketch) Top() []TopEntry {
	out := make([]TopEntry, 0, len(s.topK))
	for _, pair := range s.topK {
		out = append(out, TopEntry{Key: pair.key, Estimate: pair.estimate})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Estimate != out[j].Estimate {
			return out[i].Estimate > out[j].Estimate
		}
		return out[i].Key > out[j].Key
	})
	return out
}

// Depth is the number of counter rows.
func (s *CountMinSketch) Depth() uint64 { return s.depth }

// Width is the number of counters per row.
func (s *CountMinSketch) Width() uint64 { return s.width }
