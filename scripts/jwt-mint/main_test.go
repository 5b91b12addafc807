package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimFlags(t *testing.T) {
	var claims claimFlags
	require.NoError(t, claims.Set("tenant=acme"))
	require.NoError(t, claims.Set("note=a=b"))
	assert.Equal(t, claimFlags{"tenant": "acme", "note": "a=b"}, claims)

	assert.Error(t, claims.Set("novalue"))
	assert.Error(t, claims.Set("=x"))
}

func TestLoadSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(path, []byte("  shared-secret\n"), 0o600))

	secret, err := loadSecret(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("shared-secret"), secret)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	_, err = loadSecret(empty)
	assert.Error(t, err)

	t.Setenv("NEOGQL_SERVER_AUTH_JWT_SECRET", "from-env")
	secret, err = loadSecret("")
	require.NoError(t, err)
	assert.Equal(t, []byte("from-env"), secret)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b "))
	assert.Empty(t, splitList(""))
}
