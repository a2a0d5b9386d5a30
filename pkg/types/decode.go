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
	"errors"
	"math/big"
)

var (
	errTruncated = errors.New("truncated entity encoding")
	errTrailing  = errors.New("trailing bytes in entity encoding")
)

func takeUvarint(b []byte) (uint64, []byte, error) {
	n, size := binary.Uvarint(b)
	if size <= 0 {
		return 0, nil, errTruncated
	}
	return n, b[size:], nil
}

func takeLenPrefixed(b []byte) ([]byte, []byte, error) {
	n, rest, err := takeUvarint(b)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, errTruncated
	}
	return rest[:n], rest[n:], nil
}

func takeSignedMagnitude(b []byte) (*big.Int, []byte, error) {
	if len(b) < 1 {
		return nil, nil, errTruncated
	}
	sign := int(b[0]) - 1
	mag, rest, err := takeLenPrefixed(b[1:])
	if err != nil {
		return nil, nil, err
	}
	i := new(big.Int).SetBytes(mag)
	if sign < 0 {
		i.Neg(i)
	}
	return i, rest, nil
}

func decodeValue(b []byte) (Value, []byte, error) {
	if len(b) < 1 {
		return Value{}, nil, errTruncated
	}
	kind := ValueKind(b[0])
	b = b[1:]
	switch kind {
	case KindNull:
		return NullValue(), b, nil
	case KindString:
		s, rest, err := takeLenPrefixed(b)
		if err != nil {
			return Value{}, nil, err
		}
		return StringValue(string(s)), rest, nil
	case KindBytes:
		raw, rest, err := takeLenPrefixed(b)
		if err != nil {
			return Value{}, nil, err
		}
		return BytesValue(raw), rest, nil
	case KindBool:
		if len(b) < 1 {
			return Value{}, nil, errTruncated
		}
		return BoolValue(b[0] == 1), b[1:], nil
	case KindBigInt:
		i, rest, err := takeSignedMagnitude(b)
		if err != nil {
			return Value{}, nil, err
		}
		return BigIntValue(i), rest, nil
	case KindBigDecimal:
		c, rest, err := takeSignedMagnitude(b)
		if err != nil {
			return Value{}, nil, err
		}
		exp, rest, err := takeUvarint(rest)
		if err != nil {
			return Value{}, nil, err
		}
		return BigDecimalValue(NewBigDecimal(c, int32(uint32(exp)))), rest, nil
	case KindList:
		n, rest, err := takeUvarint(b)
		if err != nil {
			return Value{}, nil, err
		}
		list := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			var v Value
			v, rest, err = decodeValue(rest)
			if err != nil {
				return Value{}, nil, err
			}
			list = append(list, v)
		}
		return ListValue(list), rest, nil
	default:
		return Value{}, nil, errors.New("unknown value kind tag")
	}
}

func decodeEntity(b []byte) (Entity, []byte, error) {
	n, rest, err := takeUvarint(b)
	if err != nil {
		return nil, nil, err
	}
	e := make(Entity, n)
	for i := uint64(0); i < n; i++ {
		var name []byte
		name, rest, err = takeLenPrefixed(rest)
		if err != nil {
			return nil, nil, err
		}
		var v Value
		v, rest, err = decodeValue(rest)
		if err != nil {
			return nil, nil, err
		}
		e[string(name)] = v
	}
	return e, rest, nil
}
