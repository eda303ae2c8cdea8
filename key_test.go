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

func TestKeyBytes(t *testing.T) {
	require.Equal(t, []byte("hello"), KeyBytes("hello"))
	require.Equal(t, []byte{1, 2}, KeyBytes([]byte{1, 2}))
	require.Equal(t, []byte("42"), KeyBytes(42))
	require.Equal(t, []byte("-7"), KeyBytes(int64(-7)))
	require.Equal(t, []byte("42"), KeyBytes(uint64(42)))
	require.Equal(t, KeyBytes(42), KeyBytes(int32(42)), "numeric kinds share the decimal form")
}

func TestKeyBytesUnsupported(t *testing.T) {
	require.Panics(t, func() { KeyBytes(3.14) })
}

func TestKeyBytesHashEquivalence(t *testing.T) {
	// The decimal text form hashes identically however the number arrived.
	f, err := NewBloomFilter(100, 0.01)
	require.NoError(t, err)
	f.Add(KeyBytes(1234))
	require.True(t, f.Contains(KeyBytes("1234")))
}
