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
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBloomParams(t *testing.T) {
	k, mSlice, err := bloomParams(10000, 0.01)
	require.NoError(t, err)
	require.Equal(t, uint64(7), k)
	require.Equal(t, uint64(13693), mSlice)
	require.Equal(t, uint64(95851), k*mSlice)

	k, mSlice, err = bloomParams(1000, 0.02)
	require.NoError(t, err)
	require.Equal(t, uint64(6), k)
	require.Equal(t, uint64(8148), k*mSlice)
}

func TestBloomParamsInvalid(t *testing.T) {
	_, _, err := bloomParams(0, 0.01)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, _, err = bloomParams(100, 0)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, _, err = bloomParams(100, 1)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, _, err = bloomParams(100, -0.5)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestBloomAddContains(t *testing.T) {
	f, err := NewBloomFilter(1000, 0.01)
	require.NoError(t, err)

	require.False(t, f.Contains([]byte("key")))
	require.False(t, f.Add([]byte("key")), "first add should report a new key")
	require.True(t, f.Contains([]byte("key")))
	require.True(t, f.Add([]byte("key")), "second add should report a present key")
	require.Equal(t, uint64(1), f.Count(), "re-adding should not bump the count")
}

func TestBloomNoFalseNegatives(t *testing.T) {
	f, err := NewBloomFilter(10000, 0.01)
	require.NoError(t, err)
	for i := 0; i < 10000; i++ {
		f.Add([]byte(strconv.Itoa(i)))
	}
	for i := 0; i < 10000; i++ {
		require.True(t, f.Contains([]byte(strconv.Itoa(i))), "no false negatives for inserted keys")
	}
}

func TestBloomFalsePositiveRate(t *testing.T) {
	f, err := NewBloomFilter(10000, 0.01)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	seen := make(map[string]bool, 20000)
	insert := make([]string, 0, 10000)
	probe := make([]string, 0, 10000)
	for len(insert) < 10000 || len(probe) < 10000 {
		s := strconv.FormatUint(rng.Uint64(), 36)
		if seen[s] {
			continue
		}
		seen[s] = true
		if len(insert) < 10000 {
			insert = append(insert, s)
		} else {
			probe = append(probe, s)
		}
	}
	for _, s := range insert {
		f.Add([]byte(s))
	}
	falsePositives := 0
	for _, s := range probe {
		if f.Contains([]byte(s)) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(len(probe))
	require.Less(t, rate, 0.02, "empirical false-positive rate should stay under 2x the target")
}

func BenchmarkBloomAdd(b *testing.B) {
	f, _ := NewBloomFilter(uint64(b.N)+1, 0.01)
	keys := make([][]byte, b.N)
	for i := range keys {
		keys[i] = []byte(strconv.Itoa(i))
	}
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		f.Add(keys[n])
	}
}

func BenchmarkBloomContains(b *testing.B) {
	f, _ := NewBloomFilter(10000, 0.01)
	for i := 0; i < 10000; i++ {
		f.Add([]byte(strconv.Itoa(i)))
	}
	key := []byte("5000")
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		f.Contains(key)
	}
}
