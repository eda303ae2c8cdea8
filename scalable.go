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

const (
	// DefaultInitialCapacity is the capacity of the first sub-filter when
	// the caller passes zero.
	DefaultInitialCapacity = 100
	// DefaultScalableErrorRate is the compounded error target when the
	// caller passes zero.
	DefaultScalableErrorRate = 1e-3

	// scalableGrowth is the capacity multiplier between consecutive
	// sub-filters.
	scalableGrowth = 2
	// tighteningRatio shrinks each sub-filter's error target so the
	// compounded error stays below the overall target.
	tighteningRatio = 0.5
)

// ScalableBloomFilter grows geometrically while bounding the compounded
// false-positive rate, after Almeida et al., "Scalable Bloom Filters"
// (Information Processing Letters 101.6, 2007). Not safe for concurrent
// use.
type ScalableBloomFilter struct {
	initialCapacity uint64
	errorRate       float64
	filters         []*BloomFilter
}

// NewScalableBloomFilter returns an empty scalable filter. Zero values
// select DefaultInitialCapacity and DefaultScalableErrorRate.
func NewScalableBloomFilter(initialCapacity uint64, errorRate float64) (*ScalableBloomFilter, error) {
	if initialCapacity == 0 {
		initialCapacity = DefaultInitialCapacity
	}
	if errorRate == 0 {
		errorRate = DefaultScalableErrorRate
	}
	// Validate eagerly so the first Add cannot fail on sizing.
	if _, _, err := bloomParams(initialCapacity, errorRate*(1-tighteningRatio)); err != nil {
		return nil, err
	}
	return &ScalableBloomFilter{
		initialCapacity: initialCapacity,
		errorRate:       errorRate,
	}, nil
}

// Contains queries the sub-filters newest first, since recent inserts land
// in the tail.
func (s *ScalableBloomFilter) Contains(key []byte) bool {
	for i := len(s.filters) - 1; i >= 0; i-- {
		if s.filters[i].Contains(key) {
			return true
		}
	}
	return false
}

// Add inserts key and reports whether it was already present. When the
// tail sub-filter is full a new one is appended with scalableGrowth times
// the capacity and tighteningRatio times the error target.
func (s *ScalableBloomFilter) Add(key []byte) bool {
	if s.Contains(key) {
		return true
	}
	if len(s.filters) == 0 {
		f, _ := NewBloomFilter(s.initialCapacity, s.errorRate*(1-tighteningRatio))
		s.filters = append(s.filters, f)
	} else if tail := s.filters[len(s.filters)-1]; tail.Count() >= tail.Capacity() {
		f, _ := NewBloomFilter(tail.Capacity()*scalableGrowth, tail.ErrorRate()*tighteningRatio)
		s.filters = append(s.filters, f)
	}
	s.filters[len(s.filters)-1].Add(key)
	return false
}

// Capacity is the summed capacity of all sub-filters.
func (s *ScalableBloomFilter) Capacity() uint64 {
	var total uint64
	for _, f := range s.filters {
		total += f.Capacity()
	}
	return total
}

// Len is the total number of elements stored across all sub-filters.
func (s *ScalableBloomFilter) Len() uint64 {
	var total uint64
	for _, f := range s.filters {
		total += f.Count()
	}
	return total
}

// CompoundedError is the overall false-positive probability across the
// sub-filter chain, 1 - prod(1 - e_i). It stays at or below the configured
// error rate.
func (s *ScalableBloomFilter) CompoundedError() float64 {
	cum := 1.0
	for _, f := range s.filters {
		cum *= 1.0 - f.ErrorRate()
	}
	return 1.0 - cum
}

// NumFilters is the number of sub-filters created so far.
func (s *ScalableBloomFilter) NumFilters() int { return len(s.filters) }
