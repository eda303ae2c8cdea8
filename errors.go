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

import "github.com/pkg/errors"

// Error kinds surfaced by the library. Callers match them with errors.Is;
// wrapped context is attached at the failure site.
var (
	// ErrInvalidParameter is returned by constructors when a parameter is
	// out of range.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrAtCapacity is returned by CountdownBloomFilter.Add when the filter
	// refuses an insertion, unless hard capacity is disabled.
	ErrAtCapacity = errors.New("filter is at capacity")

	// ErrSnapshotCorrupt is returned when a snapshot file cannot be read or
	// its payload does not match its length prefix.
	ErrSnapshotCorrupt = errors.New("snapshot corrupt")

	// ErrHeterogeneousSnapshot is returned when a snapshot's bit length
	// disagrees with the filter loading it.
	ErrHeterogeneousSnapshot = errors.New("snapshot bit length mismatch")

	// ErrArchiveUnavailable is returned when the archive backend fails.
	ErrArchiveUnavailable = errors.New("archive unavailable")
)
