package types

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToInt64_IntTypes(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected int64
	}{
		{
			name:     "int64",
			input:    int64(42),
			expected: 42,
		},
		{
			name:     "int",
			input:    int(100),
			expected: 100,
		},
		{
			name:     "int32",
			input:    int32(200),
			expected: 200,
		},
		{
			name:     "int16",
			input:    int16(300),
			expected: 300,
		},
		{
			name:     "int8",
			input:    int8(127),
			expected: 127,
		},
		{
			name:     "uint",
			input:    uint(500),
			expected: 500,
		},
		{
			name:     "uint64",
			input:    uint64(1000),
			expected: 1000,
		},
		{
			name:     "uint32",
			input:    uint32(2000),
			expected: 2000,
		},
		{
			name:     "uint16",
			input:    uint16(3000),
			expected: 3000,
		},
		{
			name:     "uint8",
			input:    uint8(255),
			expected: 255,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToInt64(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestToInt64_FloatTypes(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected int64
	}{
		{
			name:     "float64 integer value",
			input:    float64(42.0),
			expected: 42,
		},
		{
			name:     "float64 with decimals truncates",
			input:    float64(42.9),
			expected: 42,
		},
		{
			name:     "float32 integer value",
			input:    float32(100.0),
			expected: 100,
		},
		{
			name:     "float32 with decimals truncates",
			input:    float32(99.7),
			expected: 99,
		},
		{
			name:     "float64 large value",
			input:    float64(999999.0),
			expected: 999999,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToInt64(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestToInt64_NegativeValues(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected int64
	}{
		{
			name:     "Negative int64",
			input:    int64(-42),
			expected: -42,
		},
		{
			name:     "Negative int",
			input:    int(-100),
			expected: -100,
		},
		{
			name:     "Negative int8",
			input:    int8(-128),
			expected: -128,
		},
		{
			name:     "Negative float64",
			input:    float64(-50.5),
			expected: -50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToInt64(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestToInt64_ZeroValues(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected int64
	}{
		{
			name:     "Zero int64",
			input:    int64(0),
			expected: 0,
		},
		{
			name:     "Zero int",
			input:    int(0),
			expected: 0,
		},
		{
			name:     "Zero float64",
			input:    float64(0.0),
			expected: 0,
		},
		{
			name:     "Zero uint64",
			input:    uint64(0),
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToInt64(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestToInt64_UnsupportedTypes(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{
			name:  "nil",
			input: nil,
		},
		{
			name:  "non-numeric string",
			input: "forty-two",
		},
		{
			name:  "bool",
			input: true,
		},
		{
			name:  "slice",
			input: []int{1, 2, 3},
		},
		{
			name:  "map",
			input: map[string]int{"key": 42},
		},
		{
			name:  "struct",
			input: struct{ Value int }{Value: 42},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ToInt64(tt.input)
			assert.Equal(t, int64(0), result, "Unsupported types should return 0")
		})
	}
}

func TestToInt64_TextProtocolValues(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected int64
	}{
		{name: "bytes", input: []byte("5001"), expected: 5001},
		{name: "string", input: "42", expected: 42},
		{name: "padded string", input: " 7 ", expected: 7},
		{name: "decimal with zero scale", input: []byte("123.000"), expected: 123},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToInt64(tt.input))
		})
	}
}

func TestParseInt64_Errors(t *testing.T) {
	_, err := ParseInt64(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NULL")

	_, err = ParseInt64([]byte("abc"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not numeric")

	_, err = ParseInt64(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported numeric type bool")
}

func TestParseInt64_RejectsInexactValues(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		wantErr string
	}{
		{name: "uint64 above int64", input: uint64(math.MaxInt64) + 1, wantErr: "overflows int64"},
		{name: "fractional float64", input: float64(42.5), wantErr: "not an integer"},
		{name: "fractional float32", input: float32(0.25), wantErr: "not an integer"},
		{name: "float64 at 2^63", input: float64(1 << 63), wantErr: "overflows int64"},
		{name: "fractional decimal", input: []byte("123.450"), wantErr: "not an integer"},
		{name: "decimal above int64", input: "99999999999999999999", wantErr: "overflows int64"},
		{name: "decimal above int64 with scale", input: "99999999999999999999.000", wantErr: "overflows int64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInt64(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseInt64_ExactValues(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected int64
	}{
		{name: "max uint64 that fits", input: uint64(math.MaxInt64), expected: math.MaxInt64},
		{name: "integral float64", input: float64(5000), expected: 5000},
		{name: "decimal with zero scale", input: []byte("123.000"), expected: 123},
		{name: "negative decimal", input: "-7.0", expected: -7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInt64(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "id", ToString([]byte("id")))
	assert.Equal(t, "id", ToString("id"))
	assert.Equal(t, "12", ToString(int64(12)))
	assert.Equal(t, "2026-01-02 03:04:05", ToString(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestToTime(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.Equal(t, want, ToTime(want))
	assert.Equal(t, want, ToTime("2026-01-02 03:04:05"))
	assert.Equal(t, want, ToTime([]byte("2026-01-02T03:04:05Z")))
	assert.True(t, ToTime("not a time").IsZero())
	assert.True(t, ToTime(42).IsZero())
}
