package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHashAndCompareHash(t *testing.T) {
	hash, err := GetHash("correct-horse-battery")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "correct-horse-battery", hash)

	assert.NoError(t, CompareHash(hash, "correct-horse-battery"))
	assert.Error(t, CompareHash(hash, "wrong-password"))
}

func TestGetHash_DifferentSalts(t *testing.T) {
	first, err := GetHash("same-password")
	require.NoError(t, err)
	second, err := GetHash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}
