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
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHLLSizing(t *testing.T) {
	h, err := NewHyperLogLog(0.01)
	require.NoError(t, err)
	require.Equal(t, uint64(1<<14), h.NumRegisters(), "b = ceil(log2((1.04/0.01)^2)) = 14")
}

func TestHLLInvalid(t *testing.T) {
	_, err := NewHyperLogLog(0)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = NewHyperLogLog(1)
	require.ErrorIs(t, err, ErrInvalidParameter)
	// Error rate too loose pushes b under 4.
	_, err = NewHyperLogLog(0.5)
	require.ErrorIs(t, err, ErrInvalidParameter)
	// Error rate too tight pushes b over 16.
	_, err = NewHyperLogLog(0.001)
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestHLLAlpha(t *testing.T) {
	require.Equal(t, 0.673, hllAlpha(4))
	require.Equal(t, 0.697, hllAlpha(5))
	require.Equal(t, 0.709, hllAlpha(6))
	require.InDelta(t, 0.7213/(1+1.079/16384), hllAlpha(14), 1e-12)
}

func TestHLLEstimate(t *testing.T) {
	h, err := NewHyperLogLog(0.01)
	require.NoError(t, err)
	const n = 100000
	for i := 0; i < n; i++ {
		h.Add([]byte(strconv.Itoa(i)))
	}
	estimate := float64(h.Estimate())
	require.InDelta(t, n, estimate, 0.02*n, "estimate should land within a couple sigma of the truth")
}

func TestHLLEmpty(t *testing.T) {
	h, err := NewHyperLogLog(0.01)
	require.NoError(t, err)
	require.Equal(t, uint64(0), h.Estimate(), "zero registers drive the small-range correction to zero")
}

func TestHLLDuplicatesDoNotGrow(t *testing.T) {
	h, err := NewHyperLogLog(0.01)
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		h.Add([]byte("same"))
	}
	first := h.Estimate()
	h.Add([]byte("same"))
	require.Equal(t, first, h.Estimate())
}

func TestHLLUnion(t *testing.T) {
	a, err := NewHyperLogLog(0.01)
	require.NoError(t, err)
	b, err := NewHyperLogLog(0.01)
	require.NoError(t, err)
	for i := 0; i < 20000; i++ {
		a.Add([]byte(strconv.Itoa(i)))
		b.Add([]byte(strconv.Itoa(i + 10000)))
	}
	require.NoError(t, a.Union(b))
	estimate := float64(a.Estimate())
	require.InDelta(t, 30000, estimate, 0.03*30000, "union estimates the distinct count of both sets")

	tiny, err := NewHyperLogLog(0.04)
	require.NoError(t, err)
	require.ErrorIs(t, a.Union(tiny), ErrInvalidParameter)
}

func BenchmarkHLLAdd(b *testing.B) {
	h, _ := NewHyperLogLog(0.01)
	keys := make([][]byte, 1024)
	for i := range keys {
		keys[i] = []byte(strconv.Itoa(i))
	}
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		h.Add(keys[n&1023])
	}
}
