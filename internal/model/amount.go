package model

import (
	"database/sql/driver"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a canonical 18-decimal fixed-point quantity ("wei-like"). All
// persisted and derived amounts use this representation; adapters convert
// venue-native units to it at ingress using integer multiply-by-scale, never
// a float round-trip.
type Amount struct {
	v *big.Int
}

// scale18 is the canonical scale, 10^18.
var scale18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Zero is the canonical zero amount.
var Zero = Amount{v: big.NewInt(0)}

// FromRaw wraps an already-18-decimal integer (e.g. read back from storage).
func FromRaw(raw *big.Int) Amount {
	if raw == nil {
		return Zero
	}
	return Amount{v: new(big.Int).Set(raw)}
}

// FromNativeUnits converts a venue-native integer amount with the given
// number of decimals into the canonical 18-decimal representation using pure
// integer math: multiply by 10^(18-decimals) when decimals<=18.
func FromNativeUnits(native *big.Int, decimals int) (Amount, error) {
	if native == nil {
		return Zero, fmt.Errorf("amount: nil native value")
	}
	if decimals < 0 || decimals > 18 {
		return Zero, fmt.Errorf("amount: unsupported decimals %d", decimals)
	}
	if decimals == 18 {
		return Amount{v: new(big.Int).Set(native)}, nil
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
	return Amount{v: new(big.Int).Mul(native, factor)}, nil
}

// Raw returns the underlying 18-decimal integer.
func (a Amount) Raw() *big.Int {
	if a.v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a.v)
}

// Native converts the canonical amount back to a venue-native integer with
// the given decimals, rounding toward zero. Used only for rendering back to
// a venue's own precision; never used for persisted or derived values.
func (a Amount) Native(decimals int) (*big.Int, error) {
	if decimals < 0 || decimals > 18 {
		return nil, fmt.Errorf("amount: unsupported decimals %d", decimals)
	}
	if decimals == 18 {
		return a.Raw(), nil
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
	return new(big.Int).Div(a.Raw(), factor), nil
}

// Float64 renders the amount as a float for scoring/display math (volume
// bonuses, log1p weighting); never used for storage or equality checks.
func (a Amount) Float64() float64 {
	f := new(big.Float).SetInt(a.Raw())
	scale := new(big.Float).SetInt(scale18)
	out, _ := new(big.Float).Quo(f, scale).Float64()
	return out
}

// FromFloat builds a canonical Amount from a native-unit float (test/CLI
// convenience only; production ingestion paths must use FromNativeUnits).
func FromFloat(native float64) Amount {
	scaled := new(big.Float).Mul(big.NewFloat(native), new(big.Float).SetInt(scale18))
	i, _ := scaled.Int(nil)
	return Amount{v: i}
}

func (a Amount) Add(b Amount) Amount { return Amount{v: new(big.Int).Add(a.Raw(), b.Raw())} }
func (a Amount) Sub(b Amount) Amount { return Amount{v: new(big.Int).Sub(a.Raw(), b.Raw())} }
func (a Amount) Cmp(b Amount) int    { return a.Raw().Cmp(b.Raw()) }
func (a Amount) IsZero() bool        { return a.Raw().Sign() == 0 }

func (a Amount) String() string { return a.Raw().String() }

// Display renders the amount as a human-scaled decimal string (e.g.
// "1.5") for logging and REST payloads meant for eyeballs. This is the
// only place decimal.Decimal touches an Amount: the conversion is one-way,
// from the canonical big.Int out to a display string, and never feeds back
// into stored or derived values, which stay integer-exact.
func (a Amount) Display() string {
	d := decimal.NewFromBigInt(a.Raw(), 0).Shift(-18)
	return d.String()
}

// MarshalJSON renders as a decimal string to avoid float precision loss in
// API responses and persisted payloads.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.Raw().String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or number of the raw 18-decimal
// integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("amount: invalid integer %q", s)
	}
	a.v = v
	return nil
}

// Value implements database/sql/driver.Valuer: amounts are stored as the
// decimal-string form of the raw 18-decimal integer (a NUMERIC column),
// never as a float.
func (a Amount) Value() (driver.Value, error) {
	return a.Raw().String(), nil
}

// Scan implements sql.Scanner for the inverse of Value.
func (a *Amount) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		a.v = big.NewInt(0)
		return nil
	case string:
		return a.scanString(v)
	case []byte:
		return a.scanString(string(v))
	default:
		return fmt.Errorf("amount: unsupported scan source %T", src)
	}
}

func (a *Amount) scanString(s string) error {
	if s == "" {
		a.v = big.NewInt(0)
		return nil
	}
	// NUMERIC columns round-trip through Postgres with a decimal point even
	// when the stored value is integral; strip it since the canonical
	// representation is always a bare 18-decimal integer.
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("amount: invalid integer %q", s)
	}
	a.v = v
	return nil
}
