package field

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// maxExactExponent bounds the decimal exponent expanded exactly. Literals
// beyond it fall back to float64 formatting.
const maxExactExponent = 400

// marshalCanonicalNumber encodes a JSON number literal. A value that a
// float64 holds exactly uses the shortest round-trip form. Anything else,
// such as an integer past 2^53, is written as its exact decimal expansion so
// distinct literals never collapse into one.
func marshalCanonicalNumber(n json.Number) ([]byte, error) {
	lit := n.String()
	if exponentOf(lit) > maxExactExponent {
		return marshalNumberAsFloat(n)
	}
	r, ok := new(big.Rat).SetString(lit)
	if !ok {
		return nil, fmt.Errorf("invalid number %q", lit)
	}
	if f, exact := r.Float64(); exact {
		return marshalCanonicalFloat(f)
	}
	return []byte(exactDecimal(r)), nil
}

func marshalNumberAsFloat(n json.Number) ([]byte, error) {
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", n.String(), err)
	}
	return marshalCanonicalFloat(f)
}

// exponentOf returns the absolute value of the exponent part of a number
// literal, or 0 when there is none.
func exponentOf(lit string) int {
	i := strings.IndexAny(lit, "eE")
	if i < 0 {
		return 0
	}
	exp, err := strconv.Atoi(strings.TrimPrefix(lit[i+1:], "+"))
	if err != nil {
		return maxExactExponent + 1
	}
	if exp < 0 {
		return -exp
	}
	return exp
}

// exactDecimal formats r, which came from a decimal literal, with exactly as
// many fraction digits as it needs.
func exactDecimal(r *big.Rat) string {
	if r.IsInt() {
		return r.Num().String()
	}

	// A decimal literal has a denominator of the form 2^a * 5^b; the
	// expansion needs max(a, b) fraction digits.
	d := new(big.Int).Set(r.Denom())
	twos := d.TrailingZeroBits()
	d.Rsh(d, twos)
	var fives uint
	five := big.NewInt(5)
	one := big.NewInt(1)
	rem := new(big.Int)
	for d.Cmp(one) > 0 {
		q, m := new(big.Int).QuoRem(d, five, rem)
		if m.Sign() != 0 {
			break
		}
		d = q
		fives++
	}

	s := r.FloatString(int(max(twos, fives)))
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
