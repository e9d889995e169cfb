package cursor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vectorframe/tablesync/internal/cursor"
)

func TestRoundTrip(t *testing.T) {
	enc := cursor.Encode([]string{"A", "1"}, []bool{false, false})
	assert.Equal(t, "A|1", enc)

	values, isNull := cursor.Decode(enc)
	assert.Equal(t, []string{"A", "1"}, values)
	assert.Equal(t, []bool{false, false}, isNull)
}

func TestEscapesPipeInValue(t *testing.T) {
	enc := cursor.Encode([]string{"a|b", "2"}, []bool{false, false})
	assert.NotEqual(t, "a|b|2", enc) // must not look like 3 components

	values, isNull := cursor.Decode(enc)
	assert.Equal(t, []string{"a|b", "2"}, values)
	assert.Equal(t, []bool{false, false}, isNull)
}

func TestNullComponent(t *testing.T) {
	enc := cursor.Encode([]string{"", "5"}, []bool{true, false})
	assert.Equal(t, "NULL|5", enc)

	values, isNull := cursor.Decode(enc)
	assert.True(t, isNull[0])
	assert.False(t, isNull[1])
	assert.Equal(t, "5", values[1])
}

func TestLiteralNullTokenValueIsEscaped(t *testing.T) {
	enc := cursor.Encode([]string{"NULL"}, []bool{false})
	values, isNull := cursor.Decode(enc)
	assert.False(t, isNull[0])
	assert.Equal(t, "NULL", values[0])
}

func TestEmptyCursorDecodesToNil(t *testing.T) {
	values, isNull := cursor.Decode("")
	assert.Nil(t, values)
	assert.Nil(t, isNull)
}

func TestCompareOrdering(t *testing.T) {
	assert.Equal(t, -1, cursor.Compare("", "A|1"))
	assert.Equal(t, -1, cursor.Compare("A|1", "A|2"))
	assert.Equal(t, -1, cursor.Compare("A|2", "B|1"))
	assert.Equal(t, 0, cursor.Compare("A|1", "A|1"))
	assert.Equal(t, 1, cursor.Compare("B|1", "A|2"))
}

// TestCompareOrdersIntegerComponentsNumerically guards against a
// digit-width crossing (e.g. a 30-row chunk over ids 1..100 advancing
// "90" to "100") being mistaken for the cursor moving backwards.
func TestCompareOrdersIntegerComponentsNumerically(t *testing.T) {
	assert.Equal(t, 1, cursor.Compare("100", "90"))
	assert.Equal(t, -1, cursor.Compare("90", "100"))
	assert.Equal(t, 1, cursor.Compare("10", "9"))
	assert.Equal(t, -1, cursor.Compare("9", "10"))
}
