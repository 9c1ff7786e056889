package rank

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBetween(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"", ""},
		{"V", ""},
		{"", "V"},
		{"z", ""},
		{"", "1"},
		{"", "01"},
		{"A", "A1"},
		{"A", "B"},
		{"Az", "B"},
		{"a", "a01"},
	}
	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			k, err := Between(tt.a, tt.b)
			require.NoError(t, err)
			assert.True(t, Valid(k), k)
			if tt.a != "" {
				assert.Less(t, tt.a, k)
			}
			if tt.b != "" {
				assert.Less(t, k, tt.b)
			}
		})
	}
}

func TestBetweenRejects(t *testing.T) {
	_, err := Between("B", "A")
	assert.ErrorIs(t, err, ErrOrder)
	_, err = Between("A", "A")
	assert.ErrorIs(t, err, ErrOrder)
	_, err = Between("A0", "")
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = Between("", "a-b")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestNBetween(t *testing.T) {
	keys, err := NBetween("", "", 100)
	require.NoError(t, err)
	require.Len(t, keys, 100)
	assert.True(t, sort.StringsAreSorted(keys))
	for i := 1; i < len(keys); i++ {
		assert.NotEqual(t, keys[i-1], keys[i])
	}

	keys, err = NBetween("A", "B", 7)
	require.NoError(t, err)
	require.Len(t, keys, 7)
	assert.Less(t, "A", keys[0])
	assert.Less(t, keys[6], "B")

	keys, err = NBetween("A", "B", 0)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRandomInsertsStayOrdered(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	keys := []string{}
	for i := 0; i < 500; i++ {
		pos := rnd.Intn(len(keys) + 1)
		var lo, hi string
		if pos > 0 {
			lo = keys[pos-1]
		}
		if pos < len(keys) {
			hi = keys[pos]
		}
		k, err := Between(lo, hi)
		require.NoError(t, err)
		keys = append(keys[:pos], append([]string{k}, keys[pos:]...)...)
	}
	assert.True(t, sort.StringsAreSorted(keys))
}
