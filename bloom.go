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

	"github.com/pkg/errors"
)

// bloomParams derives the slice count and bits per slice for a filter of
// the given capacity and target false-positive rate:
//
//	k      = ceil(log2(1/p))
//	mSlice = ceil(n*|ln p| / (k*ln(2)^2))
func bloomParams(capacity uint64, errorRate float64) (uint64, uint64, error) {
	if capacity == 0 {
		return 0, 0, errors.Wrap(ErrInvalidParameter, "capacity must be positive")
	}
	if errorRate <= 0 || errorRate >= 1 {
		return 0, 0, errors.Wrapf(ErrInvalidParameter, "error rate %v outside (0, 1)", errorRate)
	}
	k := uint64(math.Ceil(math.Log2(1.0 / errorRate)))
	if k < 1 {
		k = 1
	}
	ln2sq := math.Ln2 * math.Ln2
	mSlice := uint64(math.Ceil((float64(capacity) * math.Abs(math.Log(errorRate))) / (float64(k) * ln2sq)))
	if mSlice < 1 {
		mSlice = 1
	}
	return k, mSlice, nil
}

// BloomFilter is a classic fixed-capacity Bloom filter partitioned into k
// bit slices. It reports no false negatives and keeps the false-positive
// probability near the target rate while count stays at or below capacity.
// Not safe for concurrent use.
type BloomFilter struct {
	capacity  uint64
	errorRate float64
	slices    uint64
	perSlice  uint64
	bits      *bitSlices
	count     uint64
	scratch   []uint64
}

// NewBloomFilter returns a filter sized for the given capacity and target
// false-positive rate.
func NewBloomFilter(capacity uint64, errorRate float64) (*BloomFilter, error) {
	k, mSlice, err := bloomParams(capacity, errorRate)
	if err != nil {
		return nil, err
	}
	return &BloomFilter{
		capacity:  capacity,
		errorRate: errorRate,
		slices:    k,
		perSlice:  mSlice,
		bits:      newBitSlices(k, mSlice),
		scratch:   make([]uint64, k),
	}, nil
}

// Contains reports whether key is probably a member. It never mutates the
// filter.
func (f *BloomFilter) Contains(key []byte) bool {
	return f.containsIdx(hashesInto(f.scratch, key, f.perSlice))
}

func (f *BloomFilter) containsIdx(idx []uint64) bool {
	offset := uint64(0)
	for _, i := range idx {
		if !f.bits.get(offset + i) {
			return false
		}
		offset += f.perSlice
	}
	return true
}

// Add inserts key and reports whether it was already present. A present
// key leaves the filter untouched.
func (f *BloomFilter) Add(key []byte) bool {
	idx := hashesInto(f.scratch, key, f.perSlice)
	if f.containsIdx(idx) {
		return true
	}
	offset := uint64(0)
	for _, i := range idx {
		f.bits.set(offset + i)
		offset += f.perSlice
	}
	f.count++
	return false
}

// Count is the number of successful insertions.
func (f *BloomFilter) Count() uint64 { return f.count }

// Capacity is the insertion count the filter was sized for.
func (f *BloomFilter) Capacity() uint64 { return f.capacity }

// ErrorRate is the target false-positive rate.
func (f *BloomFilter) ErrorRate() float64 { return f.errorRate }

// NumBits is the total size of the bit array.
func (f *BloomFilter) NumBits() uint64 { return f.slices * f.perSlice }

// NumSlices is the number of hash slices.
func (f *BloomFilter) NumSlices() uint64 { return f.slices }
