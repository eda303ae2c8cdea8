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
	"bytes"
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

type metricType int

const (
	// The following 3 keep track of insertion outcomes.
	keyAdd = iota
	keyTouch
	keyDrop
	// The following 3 keep track of expiration and snapshot activity.
	expireTick
	snapshotSave
	snapshotLoad
	// The following 2 keep track of archive traffic.
	archiveAppend
	archiveReplay
	// This should be the final enum. Other enums should be set before this.
	doNotUse
)

func stringFor(t metricType) string {
	switch t {
	case keyAdd:
		return "keys-added"
	case keyTouch:
		return "keys-touched"
	case keyDrop:
		return "keys-dropped"
	case expireTick:
		return "expire-ticks"
	case snapshotSave:
		return "snapshots-saved"
	case snapshotLoad:
		return "snapshots-loaded"
	case archiveAppend:
		return "archive-appends"
	case archiveReplay:
		return "archive-replays"
	default:
		return "unidentified"
	}
}

// Metrics is a snapshot of activity statistics for the lifetime of a
// filter instance.
type Metrics struct {
	all [doNotUse][]*uint64
}

func newMetrics() *Metrics {
	s := &Metrics{}
	for i := 0; i < doNotUse; i++ {
		s.all[i] = make([]*uint64, 256)
		slice := s.all[i]
		for j := range slice {
			slice[j] = new(uint64)
		}
	}
	return s
}

func (p *Metrics) add(t metricType, hash, delta uint64) {
	if p == nil {
		return
	}
	valp := p.all[t]
	// Avoid false sharing by padding at least 64 bytes of space between two
	// atomic counters which would be incremented.
	idx := (hash % 25) * 10
	atomic.AddUint64(valp[idx], delta)
}

func (p *Metrics) get(t metricType) uint64 {
	if p == nil {
		return 0
	}
	valp := p.all[t]
	var total uint64
	for i := range valp {
		total += atomic.LoadUint64(valp[i])
	}
	return total
}

// KeysAdded is the total number of Add calls that inserted a new key.
func (p *Metrics) KeysAdded() uint64 {
	return p.get(keyAdd)
}

// KeysTouched is the total number of Add calls that refreshed an existing
// key's lifetime.
func (p *Metrics) KeysTouched() uint64 {
	return p.get(keyTouch)
}

// KeysDropped is the number of Add calls refused at capacity.
func (p *Metrics) KeysDropped() uint64 {
	return p.get(keyDrop)
}

// ExpireTicks is the number of refresh ticks applied by maintenance.
func (p *Metrics) ExpireTicks() uint64 {
	return p.get(expireTick)
}

// SnapshotsSaved is the number of day snapshots written.
func (p *Metrics) SnapshotsSaved() uint64 {
	return p.get(snapshotSave)
}

// SnapshotsLoaded is the number of day snapshots unioned in.
func (p *Metrics) SnapshotsLoaded() uint64 {
	return p.get(snapshotLoad)
}

// ArchiveAppends is the number of keys handed to the archive.
func (p *Metrics) ArchiveAppends() uint64 {
	return p.get(archiveAppend)
}

// ArchiveReplays is the number of keys reinserted from the archive.
func (p *Metrics) ArchiveReplays() uint64 {
	return p.get(archiveReplay)
}

// Clear resets all the metrics.
func (p *Metrics) Clear() {
	if p == nil {
		return
	}
	for i := 0; i < doNotUse; i++ {
		for j := range p.all[i] {
			atomic.StoreUint64(p.all[i][j], 0)
		}
	}
}

func (p *Metrics) String() string {
	if p == nil {
		return ""
	}
	var buf bytes.Buffer
	for i := 0; i < doNotUse; i++ {
		t := metricType(i)
		fmt.Fprintf(&buf, "%s: %s ", stringFor(t), humanize.Comma(int64(p.get(t))))
	}
	return buf.String()
}
