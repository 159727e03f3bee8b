package value

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Numeric parsing shared by the string, hash and sorted-set commands.
// Integer arguments are 64-bit signed; float arguments accept the
// reference server's infinity spellings and reject NaN.

var (
	ErrNotInteger  = errors.New("value is not an integer or out of range")
	ErrNotFloat    = errors.New("value is not a valid float")
	ErrNaN         = errors.New("resulting score is not a number (NaN)")
	ErrIntOverflow = errors.New("increment or decrement would overflow")
)

// ParseInt parses a 64-bit signed integer argument.
func ParseInt(b []byte) (int64, error) {
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	return n, nil
}

// ParseFloat parses a double argument, accepting "inf", "+inf",
// "-inf" and "infinity" in any case. NaN is rejected.
func ParseFloat(b []byte) (float64, error) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, ErrNotFloat
	}
	switch strings.ToLower(s) {
	case "inf", "+inf", "infinity", "+infinity":
		return math.Inf(1), nil
	case "-inf", "-infinity":
		return math.Inf(-1), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, ErrNotFloat
	}
	return f, nil
}

// AddInt adds two int64 values, failing on overflow.
func AddInt(a, b int64) (int64, error) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, ErrIntOverflow
	}
	return c, nil
}

// FormatFloat renders a float the way command replies expect:
// integral values without a decimal point, otherwise the shortest
// decimal form that round-trips, with trailing zeros trimmed.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return decimal.NewFromFloat(f).String()
}

// AddFloat adds a float delta to a stored string value using decimal
// arithmetic, as INCRBYFLOAT requires: the result is formatted with
// trailing-zero trimming and must be finite.
func AddFloat(stored []byte, delta []byte) (string, error) {
	cur, err := parseDecimal(stored)
	if err != nil {
		return "", err
	}
	inc, err := parseDecimal(delta)
	if err != nil {
		return "", err
	}
	sum := cur.Add(inc)
	f, _ := sum.Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "", ErrNaN
	}
	return sum.String(), nil
}

func parseDecimal(b []byte) (decimal.Decimal, error) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return decimal.Decimal{}, ErrNotFloat
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, ErrNotFloat
	}
	return d, nil
}
