package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashRoundtrip(t *testing.T) {
	hash, err := GenerateHash("s3cret-pwd")
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	match, err := CompareHash(hash, "s3cret-pwd")
	require.NoError(t, err)
	assert.True(t, match)

	// a mismatch reports both ways
	match, err = CompareHash(hash, "wrong-pwd")
	assert.Error(t, err)
	assert.False(t, match)
}
