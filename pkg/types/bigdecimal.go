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
	"fmt"
	"math/big"
	"strings"
)

// BigDecimal is an arbitrary-precision decimal pinned to a fixed format:
// coefficient * 10^exp, with the coefficient normalized to carry no factor
// of ten and at most DecimalPrecision significant digits. Arithmetic rounds
// half-even at DecimalPrecision. The format is part of the cross-node
// indexing contract; changing it changes every proof-of-indexing digest.
type BigDecimal struct {
	coeff *big.Int
	exp   int32
}

// DecimalPrecision is the significant-digit ceiling for decimal arithmetic.
const DecimalPrecision = 34

var (
	bigOne = big.NewInt(1)
	bigTen = big.NewInt(10)
)

// NewBigDecimal builds a normalized decimal from coeff * 10^exp.
func NewBigDecimal(coeff *big.Int, exp int32) BigDecimal {
	d := BigDecimal{coeff: new(big.Int).Set(coeff), exp: exp}
	d.normalize()
	return d
}

// BigDecimalFromInt64 is a convenience constructor for whole values.
func BigDecimalFromInt64(i int64) BigDecimal {
	return NewBigDecimal(big.NewInt(i), 0)
}

// ParseBigDecimal parses a plain decimal string such as "-12.0340".
func ParseBigDecimal(s string) (BigDecimal, error) {
	mant := s
	var exp int32
	if i := strings.IndexByte(s, '.'); i >= 0 {
		frac := s[i+1:]
		if frac == "" {
			return BigDecimal{}, fmt.Errorf("invalid decimal %q", s)
		}
		mant = s[:i] + frac
		exp = -int32(len(frac))
	}
	coeff, ok := new(big.Int).SetString(mant, 10)
	if !ok {
		return BigDecimal{}, fmt.Errorf("invalid decimal %q", s)
	}
	return NewBigDecimal(coeff, exp), nil
}

func (d BigDecimal) Coeff() *big.Int {
	if d.coeff == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(d.coeff)
}

func (d BigDecimal) Exp() int32 { return d.exp }

func (d BigDecimal) Sign() int {
	if d.coeff == nil {
		return 0
	}
	return d.coeff.Sign()
}

// normalize strips factors of ten from the coefficient and rounds to
// DecimalPrecision significant digits, half-even. Zero normalizes to
// exponent 0 so equal values have one representation.
func (d *BigDecimal) normalize() {
	if d.coeff == nil {
		d.coeff = new(big.Int)
	}
	if d.coeff.Sign() == 0 {
		d.exp = 0
		return
	}
	d.roundTo(DecimalPrecision)
	q, r := new(big.Int), new(big.Int)
	for {
		q.QuoRem(d.coeff, bigTen, r)
		if r.Sign() != 0 {
			break
		}
		d.coeff.Set(q)
		d.exp++
	}
}

// roundTo rounds the coefficient to at most prec significant digits,
// half-even, adjusting the exponent to compensate.
func (d *BigDecimal) roundTo(prec int) {
	neg := d.coeff.Sign() < 0
	abs := new(big.Int).Abs(d.coeff)
	digits := len(abs.String())
	if digits <= prec {
		return
	}
	drop := digits - prec
	pow := pow10(drop)
	q, r := new(big.Int).QuoRem(abs, pow, new(big.Int))
	twice := new(big.Int).Lsh(r, 1)
	switch twice.Cmp(pow) {
	case 1:
		q.Add(q, bigOne)
	case 0:
		if q.Bit(0) == 1 {
			q.Add(q, bigOne)
		}
	}
	if neg {
		q.Neg(q)
	}
	d.coeff = q
	d.exp += int32(drop)
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(bigTen, big.NewInt(int64(n)), nil)
}

// align returns the two coefficients scaled to the smaller exponent.
func align(a, b BigDecimal) (*big.Int, *big.Int, int32) {
	ac, bc := a.Coeff(), b.Coeff()
	exp := a.exp
	switch {
	case a.exp > b.exp:
		ac.Mul(ac, pow10(int(a.exp-b.exp)))
		exp = b.exp
	case b.exp > a.exp:
		bc.Mul(bc, pow10(int(b.exp-a.exp)))
	}
	return ac, bc, exp
}

func (d BigDecimal) Add(o BigDecimal) BigDecimal {
	ac, bc, exp := align(d, o)
	return NewBigDecimal(ac.Add(ac, bc), exp)
}

func (d BigDecimal) Sub(o BigDecimal) BigDecimal {
	ac, bc, exp := align(d, o)
	return NewBigDecimal(ac.Sub(ac, bc), exp)
}

func (d BigDecimal) Mul(o BigDecimal) BigDecimal {
	c := new(big.Int).Mul(d.Coeff(), o.Coeff())
	return NewBigDecimal(c, d.exp+o.exp)
}

// Div divides at DecimalPrecision+2 digits then normalizes (which rounds
// half-even to DecimalPrecision). Division by zero returns an error rather
// than trapping the whole invocation at this level.
func (d BigDecimal) Div(o BigDecimal) (BigDecimal, error) {
	if o.Sign() == 0 {
		return BigDecimal{}, fmt.Errorf("decimal division by zero")
	}
	if d.Sign() == 0 {
		return BigDecimal{}, nil
	}
	numDigits := len(new(big.Int).Abs(d.coeff).String())
	denDigits := len(new(big.Int).Abs(o.coeff).String())
	shift := DecimalPrecision + 2 + denDigits - numDigits
	if shift < 0 {
		shift = 0
	}
	num := new(big.Int).Mul(d.Coeff(), pow10(shift))
	quo := num.Quo(num, o.Coeff())
	return NewBigDecimal(quo, d.exp-o.exp-int32(shift)), nil
}

func (d BigDecimal) Neg() BigDecimal {
	return BigDecimal{coeff: new(big.Int).Neg(d.Coeff()), exp: d.exp}
}

func (d BigDecimal) Cmp(o BigDecimal) int {
	if s, os := d.Sign(), o.Sign(); s != os {
		if s < os {
			return -1
		}
		return 1
	}
	ac, bc, _ := align(d, o)
	return ac.Cmp(bc)
}

// String renders the value as a plain decimal without an exponent marker.
func (d BigDecimal) String() string {
	if d.Sign() == 0 {
		return "0"
	}
	s := new(big.Int).Abs(d.coeff).String()
	neg := d.coeff.Sign() < 0
	var out string
	switch {
	case d.exp >= 0:
		out = s + strings.Repeat("0", int(d.exp))
	case int(-d.exp) < len(s):
		i := len(s) + int(d.exp)
		out = s[:i] + "." + s[i:]
	default:
		out = "0." + strings.Repeat("0", int(-d.exp)-len(s)) + s
	}
	if neg {
		out = "-" + out
	}
	return out
}
