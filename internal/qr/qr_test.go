package qr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShareURL(t *testing.T) {
	require.Equal(t, "https://snap.example/e/abc", ShareURL("https://snap.example", "abc"))
	require.Equal(t, "https://snap.example/e/abc", ShareURL("https://snap.example/", "abc"))
}

func TestPNG(t *testing.T) {
	png, err := PNG("https://snap.example/e/abc", 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
