package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeData_EmptyIsBlank(t *testing.T) {
	doc, err := encodeData(nil)
	require.NoError(t, err)
	assert.Equal(t, "", doc)

	data, err := decodeData("")
	require.NoError(t, err)
	assert.NotNil(t, data)
	assert.Empty(t, data)
}

func TestDecodeData_Invalid(t *testing.T) {
	_, err := decodeData("coins: [1, 2")
	assert.Error(t, err)
}

func TestDecodeData_NullDocument(t *testing.T) {
	data, err := decodeData("~\n")
	require.NoError(t, err)
	assert.NotNil(t, data)
}

func TestJoins(t *testing.T) {
	assert.Equal(t, 0, joins(nil))
	assert.Equal(t, 0, joins("three"))
	assert.Equal(t, 3, joins(3))
	assert.Equal(t, 3, joins(int64(3)))
	assert.Equal(t, 3, joins(3.0))
}

// Property: string and integer values survive a trip through the YAML column.
func TestPropertyDataPreserved(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		data := map[string]any{}
		n := rapid.IntRange(1, 8).Draw(rt, "n")
		for i := 0; i < n; i++ {
			key := rapid.StringMatching(`[a-z_]{1,12}`).Draw(rt, "key")
			if rapid.Bool().Draw(rt, "int") {
				data[key] = rapid.IntRange(-1000, 1000).Draw(rt, "int_value")
			} else {
				data[key] = rapid.StringMatching(`[A-Za-z ]{1,20}`).Draw(rt, "str_value")
			}
		}
		doc, err := encodeData(data)
		require.NoError(rt, err)
		got, err := decodeData(doc)
		require.NoError(rt, err)
		assert.Equal(rt, data, got)
	})
}
