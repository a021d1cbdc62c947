package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashMatchesStandardDigest(t *testing.T) {
	t.Parallel()

	input := []byte("p1|jane|Congrats to the team!")
	sum := sha256.Sum256(input)

	got, err := New().Hash(input)
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(sum[:]), got)
	require.Len(t, got, 64)
}

func TestHashIsStableAndDistinguishesSnapshots(t *testing.T) {
	t.Parallel()

	h := New()
	first, err := h.Hash([]byte("<html>a</html>"))
	require.NoError(t, err)
	again, err := h.Hash([]byte("<html>a</html>"))
	require.NoError(t, err)
	other, err := h.Hash([]byte("<html>b</html>"))
	require.NoError(t, err)

	require.Equal(t, first, again)
	require.NotEqual(t, first, other)
	require.NotEqual(t, first[:16], other[:16])
}

func TestHashEmptyInput(t *testing.T) {
	t.Parallel()

	got, err := New().Hash(nil)
	require.NoError(t, err)
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", got)
}
