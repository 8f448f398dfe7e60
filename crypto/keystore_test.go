package crypto

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "validator.json")
	require.NoError(t, SaveToKeystore(path, key, "correct horse"))

	loaded, err := LoadFromKeystore(path, "correct horse")
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), loaded.Bytes())

	_, err = LoadFromKeystore(path, "wrong passphrase")
	require.Error(t, err)
}

func TestKeystoreRejectsBadInput(t *testing.T) {
	require.Error(t, SaveToKeystore("", nil, "pw"))

	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	require.Error(t, SaveToKeystore("", key, "pw"))

	_, err = LoadFromKeystore("", "pw")
	require.Error(t, err)
}
