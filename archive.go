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
	"time"

	"github.com/cespare/xxhash/v2"
)

// ArchiveStore is an append-only keyed log with range reads and TTL. The
// temporal filters use it to persist raw keys per logical bucket so state
// can be rebuilt after a crash or a parameter change. Row keys are logical
// strings "<name>_<bucket>" where bucket is a day or an hour.
//
// Values are empty and keyed by the archived key itself, so writes are
// idempotent on retry.
type ArchiveStore interface {
	// Insert appends a batch of keys to the row. The TTL applies to the
	// whole batch; zero means no expiry.
	Insert(rowKey string, keys [][]byte, ttl time.Duration) error
	// RangeIter streams every key in the row to fn. A missing row streams
	// nothing. Iteration stops at the first fn error, which is returned.
	RangeIter(rowKey string, fn func(key []byte) error) error
	// Remove deletes the row and all its keys.
	Remove(rowKey string) error
}

// ShardFunc maps a key to a shard in [0, shards). Wide-row filters use it
// to spread one logical row across several physical rows.
type ShardFunc func(key []byte, shards uint32) uint32

// DefaultShardFunc spreads keys by their xxhash fingerprint.
func DefaultShardFunc(key []byte, shards uint32) uint32 {
	return uint32(xxhash.Sum64(key) % uint64(shards))
}
