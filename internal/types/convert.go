package types

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ToInt64 converts an interface{} to int64.
// Supports the integer and float kinds, plus []byte and string holding a
// base-10 number (MySQL text protocol). Fractions are truncated. Anything
// else returns 0.
func ToInt64(v interface{}) int64 {
	switch f := v.(type) {
	case float64:
		return int64(f)
	case float32:
		return int64(f)
	case []byte, string:
		s := strings.TrimSpace(ToString(f))
		if n, err := parseIntString(s); err == nil {
			return n
		}
		if fl, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(fl)
		}
		return 0
	}
	n, _ := ParseInt64(v)
	return n
}

// ParseInt64 is the strict form of ToInt64. It is used for cursor values,
// where a value that does not fit an int64 exactly must fail instead of
// moving a checkpoint somewhere else.
func ParseInt64(v interface{}) (int64, error) {
	switch i := v.(type) {
	case int64:
		return i, nil
	case int:
		return int64(i), nil
	case int32:
		return int64(i), nil
	case int16:
		return int64(i), nil
	case int8:
		return int64(i), nil
	case uint:
		return fromUint64(uint64(i))
	case uint64:
		return fromUint64(i)
	case uint32:
		return int64(i), nil
	case uint16:
		return int64(i), nil
	case uint8:
		return int64(i), nil
	case float64:
		return fromFloat64(i)
	case float32:
		return fromFloat64(float64(i))
	case []byte:
		return parseIntString(string(i))
	case string:
		return parseIntString(i)
	case nil:
		return 0, fmt.Errorf("value is NULL")
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", v)
	}
}

func fromUint64(u uint64) (int64, error) {
	if u > math.MaxInt64 {
		return 0, fmt.Errorf("%d overflows int64", u)
	}
	return int64(u), nil
}

func fromFloat64(f float64) (int64, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	// 2^63 is exactly representable; anything at or above it overflows
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%v overflows int64", f)
	}
	return int64(f), nil
}

func parseIntString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return n, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%q overflows int64", s)
	}
	// DECIMAL(20,0) and friends come back as "123.000"
	if whole, frac, ok := strings.Cut(s, "."); ok && strings.Trim(frac, "0") == "" {
		n, err := strconv.ParseInt(whole, 10, 64)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%q overflows int64", s)
		}
	}
	if _, ferr := strconv.ParseFloat(s, 64); ferr == nil {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return 0, fmt.Errorf("%q is not numeric", s)
}

// ToString converts a scanned column value to a string.
func ToString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		return s.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", s)
	}
}

// timeLayouts are the textual timestamp forms produced by the supported drivers.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ToTime converts a scanned column value to time.Time. Unparseable values
// return the zero time.
func ToTime(v interface{}) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case []byte:
		return parseTime(string(t))
	case string:
		return parseTime(t)
	default:
		return time.Time{}
	}
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
