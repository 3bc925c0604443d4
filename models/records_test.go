package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList_ValueScan(t *testing.T) {
	v, err := StringList{"a", "b"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, v)

	var s StringList
	require.NoError(t, s.Scan([]byte(`["x"]`)))
	assert.Equal(t, StringList{"x"}, s)

	require.NoError(t, s.Scan(nil))
	assert.Empty(t, s)

	assert.Error(t, s.Scan(42))
}

func TestJSONText_ValueScan(t *testing.T) {
	v, err := JSONText(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "null", v)

	var j JSONText
	require.NoError(t, j.Scan(`{"folds":5}`))
	assert.JSONEq(t, `{"folds":5}`, string(j))
}
