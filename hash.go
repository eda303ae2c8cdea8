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

// Sieve is a library of probabilistic set and cardinality data structures
// with a focus on time-bounded membership: plain, scalable, countdown and
// daily-temporal Bloom filters, a Count-Min sketch with an integrated top-K
// heap, and a HyperLogLog cardinality estimator.
package sieve

import "github.com/spaolacci/murmur3"

// hash64 is 64-bit MurmurHash3 of key under seed. The x64_128 variant only
// consumes a 32-bit seed, so chained 64-bit seeds are truncated.
func hash64(key []byte, seed uint64) uint64 {
	return murmur3.Sum64WithSeed(key, uint32(seed))
}

// hashes derives k slice indices in [0, mSlice) from key. The first hash is
// seeded with 0 and every subsequent hash is seeded with the previous hash
// value, so one key yields k decorrelated indices with a single hash family.
func hashes(key []byte, k, mSlice uint64) []uint64 {
	return hashesInto(make([]uint64, k), key, mSlice)
}

// hashesInto is the allocation-free form of hashes. It fills dst, whose
// length is the slice count, and returns it.
func hashesInto(dst []uint64, key []byte, mSlice uint64) []uint64 {
	var cur uint64
	for i := range dst {
		cur = hash64(key, cur)
		dst[i] = cur % mSlice
	}
	return dst
}
