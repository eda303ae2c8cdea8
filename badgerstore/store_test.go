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

package badgerstore

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dgraph-io/sieve"
)

var _ sieve.ArchiveStore = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func collect(t *testing.T, s *Store, rowKey string) []string {
	t.Helper()
	var out []string
	require.NoError(t, s.RangeIter(rowKey, func(key []byte) error {
		out = append(out, string(key))
		return nil
	}))
	return out
}

func TestStoreInsertRange(t *testing.T) {
	s := openTestStore(t)
	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	require.NoError(t, s.Insert("session_2023-06-01:04", keys, 0))

	got := collect(t, s, "session_2023-06-01:04")
	require.ElementsMatch(t, []string{"a", "b", "c"}, got)
	require.Empty(t, collect(t, s, "session_2023-06-01:05"), "a missing row streams nothing")
}

func TestStoreRowsAreIsolated(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Insert("visitors_2023-06-01", [][]byte{[]byte("x")}, 0))
	require.NoError(t, s.Insert("visitors_2023-06-02", [][]byte{[]byte("y")}, 0))
	require.Equal(t, []string{"x"}, collect(t, s, "visitors_2023-06-01"))
	require.Equal(t, []string{"y"}, collect(t, s, "visitors_2023-06-02"))
}

func TestStoreInsertIdempotent(t *testing.T) {
	s := openTestStore(t)
	keys := [][]byte{[]byte("dup")}
	require.NoError(t, s.Insert("row", keys, 0))
	require.NoError(t, s.Insert("row", keys, 0))
	require.Len(t, collect(t, s, "row"), 1, "values are empty and keyed by the archived key, so retries collapse")
}

func TestStoreRemove(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Insert("row", [][]byte{[]byte("a"), []byte("b")}, 0))
	require.NoError(t, s.Remove("row"))
	require.Empty(t, collect(t, s, "row"))
	require.NoError(t, s.Remove("row"), "removing a missing row is not an error")
}

func TestStoreTTL(t *testing.T) {
	if testing.Short() {
		t.Skip("ttl expiry needs wall-clock time")
	}
	s := openTestStore(t)
	require.NoError(t, s.Insert("row", [][]byte{[]byte("transient")}, time.Second))
	require.Len(t, collect(t, s, "row"), 1, "entry is visible before its TTL")
	time.Sleep(2 * time.Second)
	require.Empty(t, collect(t, s, "row"), "entry expires with its TTL")
}

func TestStoreLargeBatch(t *testing.T) {
	s := openTestStore(t)
	keys := make([][]byte, 1000)
	for i := range keys {
		keys[i] = []byte("key-" + strconv.Itoa(i))
	}
	require.NoError(t, s.Insert("bulk", keys, 0))
	require.Len(t, collect(t, s, "bulk"), 1000)
}

func TestStoreBacksTemporalFilter(t *testing.T) {
	s := openTestStore(t)
	f, err := sieve.NewDailyTemporalBloomFilter(&sieve.TemporalConfig{
		Capacity:       1000,
		ErrorRate:      0.01,
		ExpirationDays: 3,
		Name:           "integration",
		SnapshotDir:    t.TempDir(),
		Archive:        s,
	})
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		_, err := f.Add([]byte("k" + strconv.Itoa(i)))
		require.NoError(t, err)
	}
	require.NoError(t, f.Flush())

	g, err := sieve.NewDailyTemporalBloomFilter(&sieve.TemporalConfig{
		Capacity:       1000,
		ErrorRate:      0.01,
		ExpirationDays: 3,
		Name:           "integration",
		SnapshotDir:    t.TempDir(),
		Archive:        s,
	})
	require.NoError(t, err)
	require.NoError(t, g.RebuildFromArchive())
	for i := 0; i < 200; i++ {
		require.True(t, g.Contains([]byte("k"+strconv.Itoa(i))))
	}
}
