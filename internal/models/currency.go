package models

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Currency is an exact amount of money in minor units (cents).
// All arithmetic is integer arithmetic; there are no rounding modes.
type Currency int64

var (
	ErrCurrencyMatchFailed = errors.New("currency: malformed amount")
	ErrCurrencyFracTooBig  = errors.New("currency: fraction greater than 100")
	ErrCurrencyNegative    = errors.New("currency: negative amount")
)

var currencyRegex = regexp.MustCompile(`^(-?)([0-9]+)(?:\.([0-9]+))?$`)

// ParseCurrency parses amounts like "12", "12.5" or "-12.50".
// A single fraction digit is a tenth, so "12.5" is 12.50.
func ParseCurrency(s string) (Currency, error) {
	m := currencyRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, ErrCurrencyMatchFailed
	}

	whole, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, ErrCurrencyMatchFailed
	}

	var frac int64
	if m[3] != "" {
		frac, err = strconv.ParseInt(m[3], 10, 64)
		if err != nil {
			return 0, ErrCurrencyMatchFailed
		}
		if len(m[3]) == 1 {
			frac *= 10
		}
		if frac >= 100 {
			return 0, ErrCurrencyFracTooBig
		}
	}

	// whole*100+frac must stay representable; a wrap here would parse
	// a huge amount into garbage with a nil error.
	if whole > (math.MaxInt64-frac)/100 {
		return 0, ErrCurrencyMatchFailed
	}

	value := whole*100 + frac
	if m[1] == "-" {
		value = -value
	}

	return Currency(value), nil
}

func (c Currency) Add(o Currency) Currency {
	sum := c + o
	// Signed overflow is a bug in the caller, never a silent wrap.
	if (o > 0 && sum < c) || (o < 0 && sum > c) {
		panic(fmt.Sprintf("currency overflow: %d + %d", int64(c), int64(o)))
	}
	return sum
}

func (c Currency) Sub(o Currency) Currency {
	return c.Add(o.Neg())
}

func (c Currency) Neg() Currency {
	return -c
}

// Whole is the number of whole currency units, truncated toward zero.
func (c Currency) Whole() int64 {
	return int64(c) / 100
}

// Fractional is the cent part, always non-negative.
func (c Currency) Fractional() int64 {
	f := int64(c) % 100
	if f < 0 {
		f = -f
	}
	return f
}

func (c Currency) AsDecimal() float64 {
	return float64(c) / 100
}

// String renders the amount the way ParseCurrency reads it: whole units
// only when the cent part is zero, two fraction digits otherwise.
func (c Currency) String() string {
	if c.Fractional() == 0 {
		return strconv.FormatInt(c.Whole(), 10)
	}

	sign := ""
	if c < 0 {
		sign = "-"
	}
	whole := c.Whole()
	if whole < 0 {
		whole = -whole
	}
	return fmt.Sprintf("%s%d.%02d", sign, whole, c.Fractional())
}

// NonNegCurrency is a Currency that is known to be >= 0. Construct it with
// NewNonNegCurrency or ParseNonNegCurrency; both reject negative values.
type NonNegCurrency Currency

func NewNonNegCurrency(c Currency) (NonNegCurrency, error) {
	if c < 0 {
		return 0, ErrCurrencyNegative
	}
	return NonNegCurrency(c), nil
}

func ParseNonNegCurrency(s string) (NonNegCurrency, error) {
	c, err := ParseCurrency(s)
	if err != nil {
		return 0, err
	}
	return NewNonNegCurrency(c)
}

func (n NonNegCurrency) Currency() Currency {
	return Currency(n)
}

func (n NonNegCurrency) String() string {
	return Currency(n).String()
}
