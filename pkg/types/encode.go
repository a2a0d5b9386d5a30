// Copyright © 2023 Vulcanize, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package types

import (
	"encoding/binary"
	"sort"
)

// Canonical byte encoding for values and entities. Every byte here feeds the
// proof-of-indexing digest and the persisted entity versions, so the layout
// is fixed: a kind tag, then uvarint-length-prefixed payloads, with entity
// attributes in lexicographic name order. Do not change without a migration.

func appendUvarint(buf []byte, n uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	return append(buf, tmp[:binary.PutUvarint(tmp[:], n)]...)
}

func appendLenPrefixed(buf, b []byte) []byte {
	buf = appendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

// AppendCanonical appends the canonical encoding of v to buf.
func (v Value) AppendCanonical(buf []byte) []byte {
	buf = append(buf, byte(v.kind))
	switch v.kind {
	case KindNull:
	case KindString:
		buf = appendLenPrefixed(buf, []byte(v.str))
	case KindBytes:
		buf = appendLenPrefixed(buf, v.raw)
	case KindBool:
		if v.flag {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	case KindBigInt:
		// sign byte then magnitude; big.Int.Bytes is empty for zero
		buf = append(buf, byte(v.num.Sign()+1))
		buf = appendLenPrefixed(buf, v.num.Bytes())
	case KindBigDecimal:
		c := v.dec.Coeff()
		buf = append(buf, byte(c.Sign()+1))
		buf = appendLenPrefixed(buf, c.Bytes())
		buf = appendUvarint(buf, uint64(uint32(v.dec.Exp())))
	case KindList:
		buf = appendUvarint(buf, uint64(len(v.list)))
		for _, e := range v.list {
			buf = e.AppendCanonical(buf)
		}
	}
	return buf
}

// AppendCanonical appends the canonical encoding of e to buf, attributes in
// lexicographic name order.
func (e Entity) AppendCanonical(buf []byte) []byte {
	names := make([]string, 0, len(e))
	for name := range e {
		names = append(names, name)
	}
	sort.Strings(names)
	buf = appendUvarint(buf, uint64(len(names)))
	for _, name := range names {
		buf = appendLenPrefixed(buf, []byte(name))
		buf = e[name].AppendCanonical(buf)
	}
	return buf
}

// EncodeEntity returns the canonical encoding of e.
func EncodeEntity(e Entity) []byte {
	return e.AppendCanonical(nil)
}

// DecodeEntity parses an encoding produced by EncodeEntity.
func DecodeEntity(b []byte) (Entity, error) {
	e, rest, err := decodeEntity(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errTrailing
	}
	return e, nil
}
