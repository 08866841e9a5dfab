package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIteratorEmptyTree(t *testing.T) {
	tree := newTestTree(t, 8, 4, 4)

	it, err := tree.Begin()
	require.NoError(t, err)
	assert.True(t, it.IsEnd())

	end, err := tree.End()
	require.NoError(t, err)
	assert.True(t, end.IsEnd())

	_, _, err = it.Next()
	assert.Error(t, err)
}

func TestIteratorEndIsPastLastEntry(t *testing.T) {
	tree := newTestTree(t, 16, 4, 4)
	for _, k := range []int{10, 20, 30} {
		_, err := tree.Insert(k, "v")
		require.NoError(t, err)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	for i := 0; i < 3; i++ {
		assert.False(t, it.IsEnd())
		_, _, err := it.Next()
		require.NoError(t, err)
	}
	assert.True(t, it.IsEnd())
}

func TestIteratorSurvivesLeafSplitAlreadyPassed(t *testing.T) {
	tree := newTestTree(t, 16, 4, 4)
	for _, k := range []int{10, 20, 30, 40} {
		_, err := tree.Insert(k, "v")
		require.NoError(t, err)
	}

	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	// step past the first leaf ([10 20]) into the second ([30 40]); the
	// iterator now holds only the second leaf's read latch
	for _, want := range []int{10, 20, 30} {
		k, _, err := it.Next()
		require.NoError(t, err)
		assert.Equal(t, want, k)
	}

	// split the first leaf, behind the iterator
	_, err = tree.Insert(15, "v")
	require.NoError(t, err)
	_, err = tree.Insert(16, "v")
	require.NoError(t, err)

	k, _, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, 40, k)
}
