// Package amount converts decimal amounts to and from currency minor units.
// All money arithmetic that must be exact to the cent goes through here.
package amount

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency resolves an ISO 4217 code.
func Currency(code string) (*money.Currency, error) {
	cur := money.GetCurrency(strings.ToUpper(code))
	if cur == nil {
		return nil, fmt.Errorf("unknown currency %q", code)
	}
	return cur, nil
}

// ToMinor returns d in minor units of the currency. It fails when d has more
// decimal places than the currency allows.
func ToMinor(d decimal.Decimal, code string) (int64, error) {
	cur, err := Currency(code)
	if err != nil {
		return 0, err
	}
	shifted := d.Shift(int32(cur.Fraction))
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimal places for %s", d.String(), cur.Fraction, cur.Code)
	}
	if !shifted.Abs().LessThan(decimal.NewFromInt(1 << 62)) {
		return 0, fmt.Errorf("amount %s is out of range", d.String())
	}
	return shifted.IntPart(), nil
}

// FromMinor is the inverse of ToMinor.
func FromMinor(minor int64, code string) (decimal.Decimal, error) {
	cur, err := Currency(code)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(minor, -int32(cur.Fraction)), nil
}

// Split divides d into n shares in minor units. Every share is the floor of
// d/n and the remainder goes to the first share, so the shares always sum to d.
func Split(d decimal.Decimal, n int, code string) ([]decimal.Decimal, error) {
	if n < 1 {
		return nil, fmt.Errorf("cannot split into %d shares", n)
	}
	minor, err := ToMinor(d, code)
	if err != nil {
		return nil, err
	}
	if minor < int64(n) {
		return nil, fmt.Errorf("amount %s is too small to split into %d shares", d.String(), n)
	}

	share := minor / int64(n)
	remainder := minor % int64(n)

	shares := make([]decimal.Decimal, n)
	for i := range shares {
		m := share
		if i == 0 {
			m += remainder
		}
		if shares[i], err = FromMinor(m, code); err != nil {
			return nil, err
		}
	}
	return shares, nil
}

// Display formats d with the currency's symbol and separators. Amounts that do
// not fit the currency's precision fall back to the plain decimal string.
func Display(d decimal.Decimal, code string) string {
	minor, err := ToMinor(d, code)
	if err != nil {
		return d.String() + " " + strings.ToUpper(code)
	}
	return money.New(minor, strings.ToUpper(code)).Display()
}
