package target_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vectorframe/tablesync/internal/target"
)

func TestNullSentinelsMapToDefaults(t *testing.T) {
	cases := []struct {
		name   string
		value  string
		family target.ColumnTypeFamily
		want   any
	}{
		{"empty integer", "", target.FamilyInteger, 0},
		{"literal NULL numeric", "NULL", target.FamilyNumeric, 0.0},
		{"backslash-N timestamp", `\N`, target.FamilyTimestamp, "1970-01-01 00:00:00"},
		{"backslash-0 date", `\0`, target.FamilyDate, "1970-01-01"},
		{"zero date", "0000-00-00", target.FamilyDate, "1970-01-01"},
		{"epoch sentinel", "1970-01-01", target.FamilyDate, "1970-01-01"},
		{"legacy sentinel", "1900-01-01", target.FamilyTimestamp, "1970-01-01 00:00:00"},
		{"short date", "197-1-1", target.FamilyDate, "1970-01-01"},
		{"empty text", "", target.FamilyText, "DEFAULT"},
		{"empty time", "", target.FamilyTime, "00:00:00"},
		{"empty boolean", "", target.FamilyBoolean, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := target.Canonicalize(tc.value, tc.family)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBooleanSpellings(t *testing.T) {
	truthy := []string{"Y", "1", "true", "TRUE"}
	for _, v := range truthy {
		assert.Equal(t, true, target.Canonicalize(v, target.FamilyBoolean), v)
	}
	falsy := []string{"N", "0", "false", "FALSE"}
	for _, v := range falsy {
		assert.Equal(t, false, target.Canonicalize(v, target.FamilyBoolean), v)
	}
}

func TestControlBytesScrubbed(t *testing.T) {
	got := target.Canonicalize("a\x01b\tc\nd\re\x7f", target.FamilyText)
	assert.Equal(t, "ab\tc\nd\re", got)
}

func TestNonNullValuePassesThrough(t *testing.T) {
	assert.Equal(t, "hello", target.Canonicalize("hello", target.FamilyText))
	assert.Equal(t, 42, target.Canonicalize(42, target.FamilyInteger))
}

func TestNilIsPreserved(t *testing.T) {
	assert.Nil(t, target.Canonicalize(nil, target.FamilyText))
}
