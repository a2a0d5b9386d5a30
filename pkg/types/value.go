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
	"bytes"
	"fmt"
	"math/big"
	"strings"
)

// ValueKind enumerates the attribute value types mapping code may store.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindBytes
	KindBool
	KindBigInt
	KindBigDecimal
	KindList
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindString:
		return "String"
	case KindBytes:
		return "Bytes"
	case KindBool:
		return "Bool"
	case KindBigInt:
		return "BigInt"
	case KindBigDecimal:
		return "BigDecimal"
	case KindList:
		return "List"
	default:
		return fmt.Sprintf("ValueKind(%d)", uint8(k))
	}
}

// Value is one typed attribute value. The zero Value is Null.
type Value struct {
	kind ValueKind
	str  string
	raw  []byte
	flag bool
	num  *big.Int
	dec  BigDecimal
	list []Value
}

func NullValue() Value              { return Value{} }
func StringValue(s string) Value    { return Value{kind: KindString, str: s} }
func BoolValue(b bool) Value        { return Value{kind: KindBool, flag: b} }

func ListValue(vs []Value) Value {
	return Value{kind: KindList, list: append([]Value(nil), vs...)}
}
func BigDecimalValue(d BigDecimal) Value {
	return Value{kind: KindBigDecimal, dec: d}
}

func BytesValue(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, raw: cp}
}

func BigIntValue(i *big.Int) Value {
	return Value{kind: KindBigInt, num: new(big.Int).Set(i)}
}

// IntValue is a convenience wrapper for small integers.
func IntValue(i int64) Value { return BigIntValue(big.NewInt(i)) }

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

func (v Value) Str() string            { return v.str }
func (v Value) Bool() bool             { return v.flag }
func (v Value) BigDecimal() BigDecimal { return v.dec }

// Bytes returns a copy; accessors never alias a Value's internal state, so
// a value read from the store cannot be mutated in place.
func (v Value) Bytes() []byte {
	if v.raw == nil {
		return nil
	}
	cp := make([]byte, len(v.raw))
	copy(cp, v.raw)
	return cp
}

// List returns a copy of the element slice.
func (v Value) List() []Value {
	if v.list == nil {
		return nil
	}
	return append([]Value(nil), v.list...)
}

func (v Value) BigInt() *big.Int {
	if v.num == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v.num)
}

// Equal compares two values structurally.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindBytes:
		return bytes.Equal(v.raw, o.raw)
	case KindBool:
		return v.flag == o.flag
	case KindBigInt:
		return v.num.Cmp(o.num) == 0
	case KindBigDecimal:
		return v.dec.Cmp(o.dec) == 0
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return fmt.Sprintf("%q", v.str)
	case KindBytes:
		return fmt.Sprintf("0x%x", v.raw)
	case KindBool:
		return fmt.Sprintf("%t", v.flag)
	case KindBigInt:
		return v.num.String()
	case KindBigDecimal:
		return v.dec.String()
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "?"
}

// Entity maps attribute names to values. Entities are copied on every store
// boundary crossing so mapping code can never alias committed state; the
// copy is shallow because Values only hand out copies of their internals.
type Entity map[string]Value

func (e Entity) Copy() Entity {
	cp := make(Entity, len(e))
	for k, v := range e {
		cp[k] = v
	}
	return cp
}

func (e Entity) Equal(o Entity) bool {
	if len(e) != len(o) {
		return false
	}
	for k, v := range e {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
