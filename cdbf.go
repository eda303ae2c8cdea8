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
	"time"

	"github.com/pkg/errors"
)

// counterInit is the value a freshly inserted cell starts from.
const counterInit = 255

// CountdownConfig configures a CountdownBloomFilter.
type CountdownConfig struct {
	// Capacity is the number of distinct live keys the filter is sized for.
	Capacity uint64
	// ErrorRate is the target false-positive rate.
	ErrorRate float64
	// Expiration is the sliding-window length: a key inserted once stops
	// reporting membership about this long after its last touch.
	Expiration time.Duration
	// DisableHardCapacity lets Add keep inserting past capacity.
	DisableHardCapacity bool
	// Metrics enables activity counters on the instance.
	Metrics bool
}

// CountdownBloomFilter expires entries over a sliding window by batched
// counter decrement, after Sanjuas-Cuxart et al., "A lightweight algorithm
// for traffic filtering over sliding windows" (ICC 2012).
//
// Each of a key's k cells is set to counterInit on insertion. Maintenance
// decrements one cell per refresh tick; the tick period is sized so a
// key's cells reach zero about Expiration after the insert. Because only
// one cell decrements at a time, occasional false negatives close to
// expiration are part of the model. Not safe for concurrent use.
type CountdownBloomFilter struct {
	capacity            uint64
	errorRate           float64
	expiration          time.Duration
	slices              uint64
	perSlice            uint64
	nbits               uint64
	cells               []uint8
	count               uint64
	refreshHead         uint64
	z                   float64
	estimateZ           float64
	disableHardCapacity bool
	scratch             []uint64

	// Metrics holds activity counters when enabled in the config.
	Metrics *Metrics
}

// NewCountdownBloomFilter returns a filter per config.
func NewCountdownBloomFilter(config *CountdownConfig) (*CountdownBloomFilter, error) {
	k, mSlice, err := bloomParams(config.Capacity, config.ErrorRate)
	if err != nil {
		return nil, err
	}
	if config.Expiration <= 0 {
		return nil, errors.Wrapf(ErrInvalidParameter, "expiration %v must be positive", config.Expiration)
	}
	c := &CountdownBloomFilter{
		capacity:   config.Capacity,
		errorRate:  config.ErrorRate,
		expiration: config.Expiration,
		slices:     k,
		perSlice:   mSlice,
		nbits:      k * mSlice,
		cells:      make([]uint8, k*mSlice),
		// The working unset ratio is held constant at 0.5: the filter
		// operates near its optimal set ratio most of the time and the
		// refresh rate is barely sensitive to it.
		z:                   0.5,
		disableHardCapacity: config.DisableHardCapacity,
		scratch:             make([]uint64, k),
	}
	if config.Metrics {
		c.Metrics = newMetrics()
	}
	return c, nil
}

// Contains reports whether every cell of the key's k positions is nonzero.
func (c *CountdownBloomFilter) Contains(key []byte) bool {
	return c.containsIdx(hashesInto(c.scratch, key, c.perSlice))
}

func (c *CountdownBloomFilter) containsIdx(idx []uint64) bool {
	offset := uint64(0)
	for _, i := range idx {
		if c.cells[offset+i] == 0 {
			return false
		}
		offset += c.perSlice
	}
	return true
}

func (c *CountdownBloomFilter) setIdx(idx []uint64) {
	offset := uint64(0)
	for _, i := range idx {
		c.cells[offset+i] = counterInit
		offset += c.perSlice
	}
}

// Add inserts key and reports whether it was already present. A present
// key is touched: its cells reset to the full counter value, which slides
// its expiration forward. A fresh insert past capacity, or while the unset
// ratio estimate exceeds 0.5, fails with ErrAtCapacity unless hard
// capacity is disabled.
func (c *CountdownBloomFilter) Add(key []byte) (bool, error) {
	return c.add(key, false)
}

// AddSkipCheck inserts key without the membership check, so an existing
// key is re-inserted rather than touched.
func (c *CountdownBloomFilter) AddSkipCheck(key []byte) (bool, error) {
	return c.add(key, true)
}

func (c *CountdownBloomFilter) add(key []byte, skipCheck bool) (bool, error) {
	idx := hashesInto(c.scratch, key, c.perSlice)
	if !skipCheck && c.containsIdx(idx) {
		c.setIdx(idx)
		c.Metrics.add(keyTouch, idx[0], 1)
		return true, nil
	}
	if (c.count > c.capacity || c.estimateZ > 0.5) && !c.disableHardCapacity {
		c.Metrics.add(keyDrop, idx[0], 1)
		return false, errors.Wrapf(ErrAtCapacity, "count %d, capacity %d, unset ratio %v",
			c.count, c.capacity, c.estimateZ)
	}
	c.setIdx(idx)
	c.count++
	c.Metrics.add(keyAdd, idx[0], 1)
	return false, nil
}

// refreshTime is the refresh-tick period in seconds for the configured
// expiration delay.
func (c *CountdownBloomFilter) refreshTime() float64 {
	z := c.z
	if z == 0 {
		z = 1e-10
	}
	return c.expiration.Seconds() * (1.0 / float64(c.nbits)) *
		(1.0 / (counterInit - 1 + (1.0 / (z * float64(c.slices+1)))))
}

// RefreshPeriod is the wall-clock interval between refresh ticks.
func (c *CountdownBloomFilter) RefreshPeriod() time.Duration {
	return time.Duration(c.refreshTime() * float64(time.Second))
}

// BatchedExpirationMaintenance applies floor(elapsed/tick) refresh ticks:
// each tick decrements the cell under the refresh head if nonzero and
// advances the head. It refreshes the unset-ratio estimate as the fraction
// of ticks that leave their cell nonzero and re-estimates the live count
// from it.
//
// The return value is the wall time actually consumed by whole ticks.
// Callers driving the filter from a clock should carry the difference
// elapsed - returned into the next call to avoid drift.
func (c *CountdownBloomFilter) BatchedExpirationMaintenance(elapsed time.Duration) time.Duration {
	tau := c.refreshTime()
	n := uint64(math.Floor(elapsed.Seconds() / tau))
	var nonzero uint64
	for i := uint64(0); i < n; i++ {
		if c.cells[c.refreshHead] != 0 {
			c.cells[c.refreshHead]--
			if c.cells[c.refreshHead] != 0 {
				nonzero++
			}
		}
		c.refreshHead = (c.refreshHead + 1) % c.nbits
	}
	if n != 0 {
		c.estimateZ = float64(nonzero) / float64(n)
		c.estimateCount()
		c.Metrics.add(expireTick, c.refreshHead, n)
	}
	return time.Duration(float64(n) * tau * float64(time.Second))
}

// estimateCount re-derives the live count from the unset-ratio estimate.
func (c *CountdownBloomFilter) estimateCount() {
	if c.estimateZ == 0 {
		c.estimateZ = 1.0 / float64(c.nbits)
	}
	c.estimateZ = math.Min(c.estimateZ, 0.999999)
	c.count = uint64(-(float64(c.nbits) / float64(c.slices)) * math.Log(1.0-c.estimateZ))
}

// computeZ is the exact nonzero-cell ratio, as opposed to the maintenance
// estimate.
func (c *CountdownBloomFilter) computeZ() float64 {
	var nonzero uint64
	for _, cell := range c.cells {
		if cell != 0 {
			nonzero++
		}
	}
	return float64(nonzero) / float64(c.nbits)
}

// Count is the estimated number of live keys.
func (c *CountdownBloomFilter) Count() uint64 { return c.count }

// Capacity is the configured live-key capacity.
func (c *CountdownBloomFilter) Capacity() uint64 { return c.capacity }

// EstimatedUnsetRatio is the maintenance estimate of the nonzero-cell
// fraction.
func (c *CountdownBloomFilter) EstimatedUnsetRatio() float64 { return c.estimateZ }

// NumBits is the size of the counter array.
func (c *CountdownBloomFilter) NumBits() uint64 { return c.nbits }
