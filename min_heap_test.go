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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMinHeap(t *testing.T) {
	heap := NewMinHeap[topPair]()

	// Test insertion
	heap.Insert(&topPair{30, "a"})
	heap.Insert(&topPair{25, "b"})

	peek, _ := heap.Peek()
	require.Equal(t, int64(25), peek.estimate, "Peek returned incorrect item")

	heap.Insert(&topPair{35, "c"})
	heap.Insert(&topPair{20, "d"})

	require.Equalf(t, 4, heap.Size(), "Expected heap size 4, got %d", heap.Size())

	// Test extraction
	expected := []int64{20, 25, 30, 35}
	for i, want := range expected {
		item, ok := heap.Extract()
		require.Truef(t, ok, "Failed to extract item %d", i)
		require.Equalf(t, want, item.estimate, "Expected estimate %d, got %d", want, item.estimate)
	}

	// Test empty heap
	_, ok := heap.Extract()
	require.False(t, ok, "Expected false when extracting from empty heap")
}

func TestMinHeapPushPop(t *testing.T) {
	heap := NewMinHeap[topPair]()

	bounced := heap.PushPop(&topPair{5, "x"})
	require.Equal(t, "x", bounced.key, "PushPop on an empty heap bounces the item back")

	heap.Insert(&topPair{10, "a"})
	heap.Insert(&topPair{20, "b"})

	out := heap.PushPop(&topPair{15, "c"})
	require.Equal(t, "a", out.key, "a larger item displaces the minimum")
	require.Equal(t, 2, heap.Size())

	out = heap.PushPop(&topPair{1, "d"})
	require.Equal(t, "d", out.key, "an item below the minimum bounces back")
	require.Equal(t, 2, heap.Size())
}

func TestMinHeapFix(t *testing.T) {
	heap := NewMinHeap[topPair]()
	pairs := []*topPair{{10, "a"}, {20, "b"}, {30, "c"}}
	for _, p := range pairs {
		heap.Insert(p)
	}

	// Mutate in place and restore order.
	pairs[0].estimate = 40
	heap.Fix()
	min, _ := heap.Peek()
	require.Equal(t, "b", min.key)
}

func TestMinHeapTieBreak(t *testing.T) {
	heap := NewMinHeap[topPair]()
	heap.Insert(&topPair{10, "b"})
	heap.Insert(&topPair{10, "a"})
	min, _ := heap.Extract()
	require.Equal(t, "a", min.key, "equal estimates order by key")
}
