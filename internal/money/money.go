// Package money holds fixed-point amounts with two fractional digits.
//
// Amounts are stored as integer cents. On the JSON boundary they travel as
// decimal strings ("15.00"); numbers are accepted on input for convenience.
package money

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// MaxCents bounds any single parsed amount (10,000,000,000.00). Together with
// the per-line quantity and line-count limits enforced by callers, sums of
// line subtotals stay far inside int64.
const MaxCents = 1_000_000_000_000

type Amount int64

var (
	hundred  = decimal.NewFromInt(100)
	maxCents = decimal.NewFromInt(MaxCents)
)

func FromCents(cents int64) Amount {
	return Amount(cents)
}

// Parse reads a decimal string such as "12.5" or "12.50". More than two
// fractional digits are rounded half away from zero.
func Parse(raw string) (Amount, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return FromDecimal(d)
}

func MustParse(raw string) Amount {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// FromDecimal converts to cents, rejecting magnitudes above MaxCents.
func FromDecimal(d decimal.Decimal) (Amount, error) {
	cents := d.Mul(hundred).Round(0)
	if cents.Abs().GreaterThan(maxCents) {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, d.String())
	}
	return Amount(cents.IntPart()), nil
}

func (a Amount) Cents() int64 {
	return int64(a)
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

func (a Amount) Mul(qty int) Amount {
	return a * Amount(qty)
}

func (a Amount) IsNegative() bool {
	return a < 0
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// Float is only meant for presentation layers such as spreadsheets.
func (a Amount) Float() float64 {
	f, _ := a.Decimal().Float64()
	return f
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" || raw == "" {
		*a = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Amount) Value() (driver.Value, error) {
	return int64(a), nil
}

func (a *Amount) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = 0
	case int64:
		*a = Amount(v)
	case int32:
		*a = Amount(v)
	case []byte:
		parsed, err := decimal.NewFromString(string(v))
		if err != nil {
			return err
		}
		*a = Amount(parsed.IntPart())
	case string:
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			return err
		}
		*a = Amount(parsed.IntPart())
	default:
		return fmt.Errorf("money: cannot scan %T", src)
	}
	return nil
}

func Sum(amounts ...Amount) Amount {
	total := Amount(0)
	for _, a := range amounts {
		total += a
	}
	return total
}
