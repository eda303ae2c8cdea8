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

import "strconv"

// KeyBytes canonicalizes a key for hashing. All filters consume opaque
// octet strings; []byte is used as is, text is its UTF-8 encoding, and
// int, int32, int64, uint32 and uint64 are their decimal text form. Any
// other type, floating-point numbers included, panics. The encoding is
// part of the wire contract because it determines the hash.
func KeyBytes(key interface{}) []byte {
	switch k := key.(type) {
	case []byte:
		return k
	case string:
		return []byte(k)
	case int:
		return strconv.AppendInt(nil, int64(k), 10)
	case int32:
		return strconv.AppendInt(nil, int64(k), 10)
	case int64:
		return strconv.AppendInt(nil, k, 10)
	case uint32:
		return strconv.AppendUint(nil, uint64(k), 10)
	case uint64:
		return strconv.AppendUint(nil, k, 10)
	default:
		panic("key type not supported")
	}
}
