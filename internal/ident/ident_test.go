package ident_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vectorframe/tablesync/internal/ident"
)

func TestLowerCasing(t *testing.T) {
	tbl := ident.NewQualifiedTable("Sales", "Orders")
	assert.Equal(t, "sales.orders", tbl.Raw())
	assert.Equal(t, `"sales"."orders"`, tbl.Quoted())
}

func TestQuotedEscaping(t *testing.T) {
	i := ident.New(`weird"name`)
	assert.Equal(t, `"weird""name"`, i.Quoted())
}

func TestMapOrdering(t *testing.T) {
	m := ident.NewMap[int]()
	a := ident.NewQualifiedTable("s", "a")
	b := ident.NewQualifiedTable("s", "b")
	m.Put(b, 2)
	m.Put(a, 1)
	m.Put(b, 22) // overwrite, should not duplicate key order

	var seen []string
	require := assert.New(t)
	require.NoError(m.Range(func(tbl ident.Table, v int) error {
		seen = append(seen, tbl.Raw())
		return nil
	}))
	assert.Equal(t, []string{"s.b", "s.a"}, seen)
	assert.Equal(t, 2, m.Len())
}

func TestValidate(t *testing.T) {
	assert.Error(t, ident.Validate(ident.Table{}))
	assert.NoError(t, ident.Validate(ident.NewQualifiedTable("s", "t")))
}
