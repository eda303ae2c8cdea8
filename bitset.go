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
	"encoding/binary"

	"github.com/pkg/errors"
)

// bitSlices is a fixed-size bit array partitioned into equal contiguous
// slices. One hash selects one bit per slice; absolute bit i of slice j
// lives at j*perSlice + i.
type bitSlices struct {
	words    []uint64
	nbits    uint64
	slices   uint64
	perSlice uint64
}

func newBitSlices(slices, perSlice uint64) *bitSlices {
	nbits := slices * perSlice
	return &bitSlices{
		words:    make([]uint64, (nbits+63)/64),
		nbits:    nbits,
		slices:   slices,
		perSlice: perSlice,
	}
}

func (b *bitSlices) get(i uint64) bool {
	return b.words[i>>6]&(1<<(i&63)) != 0
}

func (b *bitSlices) set(i uint64) {
	b.words[i>>6] |= 1 << (i & 63)
}

func (b *bitSlices) reset() {
	for i := range b.words {
		b.words[i] = 0
	}
}

// orWords unions raw words of the same bit length into b.
func (b *bitSlices) orWords(words []uint64) {
	for i := range words {
		b.words[i] |= words[i]
	}
}

func (b *bitSlices) or(other *bitSlices) error {
	if other.nbits != b.nbits {
		return errors.Wrapf(ErrHeterogeneousSnapshot, "union of %d bits into %d bits", other.nbits, b.nbits)
	}
	b.orWords(other.words)
	return nil
}

// marshal packs the bit array as a 4-byte little-endian bit count followed
// by ceil(nbits/8) bytes, bit i at byte i/8, mask 1<<(i%8).
func (b *bitSlices) marshal() []byte {
	nbytes := (b.nbits + 7) / 8
	out := make([]byte, 4+nbytes)
	binary.LittleEndian.PutUint32(out[:4], uint32(b.nbits))
	for i, w := range b.words {
		for j := uint64(0); j < 8; j++ {
			pos := uint64(i)*8 + j
			if pos >= nbytes {
				break
			}
			out[4+pos] = byte(w >> (8 * j))
		}
	}
	return out
}

// unmarshalBits parses a marshalled bit blob and returns its bit count and
// word representation. The caller decides whether the bit count is
// acceptable.
func unmarshalBits(data []byte) (uint64, []uint64, error) {
	if len(data) < 4 {
		return 0, nil, errors.Wrapf(ErrSnapshotCorrupt, "blob of %d bytes is shorter than the length prefix", len(data))
	}
	nbits := uint64(binary.LittleEndian.Uint32(data[:4]))
	body := data[4:]
	nbytes := (nbits + 7) / 8
	if uint64(len(body)) != nbytes {
		return 0, nil, errors.Wrapf(ErrSnapshotCorrupt, "prefix declares %d bits (%d bytes), body has %d bytes",
			nbits, nbytes, len(body))
	}
	words := make([]uint64, (nbits+63)/64)
	for pos, c := range body {
		words[pos/8] |= uint64(c) << (8 * (uint64(pos) & 7))
	}
	return nbits, words, nil
}
