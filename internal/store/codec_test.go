package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestEncodeRow tests row encoding against a header
func TestEncodeRow(t *testing.T) {
	header := []string{"t", "open", "close"}

	tests := []struct {
		name string
		row  Fields
		want string
	}{
		{"All fields present", Fields{"t": "1", "open": "10", "close": "11"}, "1,10,11"},
		{"Absent field is empty", Fields{"t": "1", "close": "20"}, "1,,20"},
		{"Empty row", Fields{}, ",,"},
		{"Extra fields ignored", Fields{"t": "1", "bogus": "x"}, "1,,"},
		{"Comma forces quoting", Fields{"t": "a,b"}, `"a,b",,`},
		{"Quote forces quoting and doubling", Fields{"t": `say "hi"`}, `"say ""hi""",,`},
		{"Newline forces quoting", Fields{"t": "a\nb"}, "\"a\nb\",,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encodeRow(header, tt.row))
		})
	}
}

// TestDecodeRow tests tolerant row decoding
func TestDecodeRow(t *testing.T) {
	header := []string{"t", "open", "close"}

	t.Run("Plain line", func(t *testing.T) {
		row, clean := decodeRow(header, "1,10,11")
		assert.True(t, clean)
		assert.Equal(t, Fields{"t": "1", "open": "10", "close": "11"}, row)
	})

	t.Run("Empty value is absent", func(t *testing.T) {
		row, clean := decodeRow(header, "1,,20")
		assert.True(t, clean)
		assert.Equal(t, Fields{"t": "1", "close": "20"}, row)
		_, ok := row["open"]
		assert.False(t, ok)
	})

	t.Run("Quoted field with comma", func(t *testing.T) {
		row, clean := decodeRow(header, `"a,b",2,3`)
		assert.True(t, clean)
		assert.Equal(t, "a,b", row["t"])
	})

	t.Run("Doubled quote is literal", func(t *testing.T) {
		row, clean := decodeRow(header, `"say ""hi""",2,3`)
		assert.True(t, clean)
		assert.Equal(t, `say "hi"`, row["t"])
	})

	t.Run("Too many fields flagged and truncated", func(t *testing.T) {
		row, clean := decodeRow(header, "1,2,3,4,5")
		assert.False(t, clean)
		assert.Equal(t, Fields{"t": "1", "open": "2", "close": "3"}, row)
	})

	t.Run("Too few fields flagged but decoded", func(t *testing.T) {
		row, clean := decodeRow(header, "1,2")
		assert.False(t, clean)
		assert.Equal(t, Fields{"t": "1", "open": "2"}, row)
	})

	t.Run("Unterminated quote flagged but decoded", func(t *testing.T) {
		row, clean := decodeRow(header, `"never closed,2,3`)
		assert.False(t, clean)
		assert.Equal(t, "never closed,2,3", row["t"])
	})

	t.Run("Stray quote mid-field flagged", func(t *testing.T) {
		_, clean := decodeRow(header, `ab"cd,2,3`)
		assert.False(t, clean)
	})
}

// TestCodecRoundTrip tests that encoding then decoding recovers values
func TestCodecRoundTrip(t *testing.T) {
	header := []string{"a", "b"}

	tests := []struct {
		name  string
		value string
	}{
		{"Comma and quote", `a,b"c`},
		{"Only quotes", `""`},
		{"Embedded newline", "line one\nline two"},
		{"Carriage return", "left\rright"},
		{"Unicode", "BTC→USD §"},
		{"Plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := encodeRow(header, Fields{"a": tt.value, "b": "x"})
			row, clean := decodeRow(header, line)
			assert.True(t, clean)
			assert.Equal(t, tt.value, row["a"])
			assert.Equal(t, "x", row["b"])
		})
	}
}
