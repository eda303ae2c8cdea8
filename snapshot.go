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
	"compress/zlib"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// dayFormat renders a day period in snapshot file names and archive rows.
const dayFormat = "2006-01-02"

// hourFormat renders an hourly archive bucket, HH zero-padded.
const hourFormat = "2006-01-02:15"

// snapshotFile is one enumerated day snapshot on disk.
type snapshotFile struct {
	path   string
	period time.Time
}

// writeSnapshot persists a bit array: a zlib stream (default level) over
// the length-prefixed packed bit blob. The file is written to a temporary
// sibling and renamed into place so readers never observe a partial write.
func writeSnapshot(path string, bits *bitSlices) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrapf(err, "while creating %s", tmp)
	}
	zw := zlib.NewWriter(f)
	if _, err := zw.Write(bits.marshal()); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "while compressing %s", tmp)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "while flushing %s", tmp)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "while syncing %s", tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "while closing %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "while renaming %s", tmp)
	}
	return nil
}

// readSnapshot loads a snapshot file and returns its bit count and words.
// Unreadable or short payloads, including legacy pickle-era files, surface
// ErrSnapshotCorrupt.
func readSnapshot(path string) (uint64, []uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, errors.Wrapf(ErrSnapshotCorrupt, "open %s: %v", path, err)
	}
	defer f.Close()
	zr, err := zlib.NewReader(f)
	if err != nil {
		return 0, nil, errors.Wrapf(ErrSnapshotCorrupt, "zlib header of %s: %v", path, err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return 0, nil, errors.Wrapf(ErrSnapshotCorrupt, "decompress %s: %v", path, err)
	}
	nbits, words, err := unmarshalBits(data)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "snapshot %s", path)
	}
	return nbits, words, nil
}

// snapshotPath is <dir>/<name>_<expirationDays>_<YYYY-MM-DD>.dat.
func snapshotPath(dir, name string, expirationDays int, period time.Time) string {
	return filepath.Join(dir, name+"_"+strconv.Itoa(expirationDays)+"_"+period.Format(dayFormat)+".dat")
}

// listSnapshots enumerates the snapshot files for one filter identity.
// Files whose date suffix does not parse are skipped.
func listSnapshots(dir, name string, expirationDays int) ([]snapshotFile, error) {
	pattern := filepath.Join(dir, name+"_"+strconv.Itoa(expirationDays)+"_*.dat")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "while globbing %s", pattern)
	}
	out := make([]snapshotFile, 0, len(matches))
	for _, path := range matches {
		base := strings.TrimSuffix(filepath.Base(path), ".dat")
		i := strings.LastIndex(base, "_")
		if i < 0 {
			continue
		}
		period, err := time.ParseInLocation(dayFormat, base[i+1:], time.Local)
		if err != nil {
			continue
		}
		out = append(out, snapshotFile{path: path, period: period})
	}
	return out, nil
}
