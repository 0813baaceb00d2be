package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Money is an amount in minor currency units (cents).
type Money int64

// ParseMoney parses a decimal string with at most two fractional digits ("1000.00", "12.5", "7").
func ParseMoney(s string) (Money, error) {
	v, err := parseFixed2(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return Money(v), nil
}

// String renders the amount with two fractional digits.
func (m Money) String() string {
	return formatFixed2(int64(m))
}

// MarshalJSON encodes money as a decimal string so clients never see float rounding.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts both "12.34" and 12.34.
func (m *Money) UnmarshalJSON(data []byte) error {
	parsed, err := ParseMoney(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Value stores money as BIGINT minor units.
func (m Money) Value() (driver.Value, error) {
	return int64(m), nil
}

// Scan reads BIGINT minor units.
func (m *Money) Scan(value interface{}) error {
	switch v := value.(type) {
	case int64:
		*m = Money(v)
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return err
		}
		*m = Money(n)
	case nil:
		*m = 0
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}
	return nil
}

// Rate is a percentage expressed in basis points: 5.00% == 500.
type Rate int64

// RateScale is 100% in basis points.
const RateScale Rate = 10000

// ParseRate parses a percentage with at most two fractional digits ("16.00").
func ParseRate(s string) (Rate, error) {
	v, err := parseFixed2(s)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	return Rate(v), nil
}

// String renders the rate as a percentage with two fractional digits.
func (r Rate) String() string {
	return formatFixed2(int64(r))
}

// MarshalJSON encodes the rate as "16.00".
func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// ApplyTo returns round-half-up(amount * r / 100%).
func (r Rate) ApplyTo(amount Money) Money {
	product := int64(amount) * int64(r)
	half := int64(RateScale) / 2
	if product < 0 {
		return Money(-((-product + half) / int64(RateScale)))
	}
	return Money((product + half) / int64(RateScale))
}

// ApplyDown returns amount * r / 100% truncated toward zero.
func (r Rate) ApplyDown(amount Money) Money {
	return Money(int64(amount) * int64(r) / int64(RateScale))
}

func parseFixed2(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	negative := false
	if s[0] == '-' || s[0] == '+' {
		negative = s[0] == '-'
		s = s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("no digits")
	}
	if !allDigits(whole) || !allDigits(frac) {
		return 0, fmt.Errorf("invalid character in %q", s)
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 2 {
		return 0, fmt.Errorf("more than two fractional digits")
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid fractional part")
	}
	v := w*100 + f
	if negative {
		v = -v
	}
	return v, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func formatFixed2(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}
