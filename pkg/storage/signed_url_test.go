package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("file-1", "folder-1/file-1.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	fileID, relPath, parsedExpiry, err := signer.Parse(token)
	require.NoError(t, err)
	require.Equal(t, "file-1", fileID)
	require.Equal(t, "folder-1/file-1.pdf", relPath)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerTamperedToken(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("file-1", "folder-1/file-1.pdf")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "file-2"
	_, _, _, err = signer.Parse(strings.Join(parts, "."))
	require.Error(t, err)
}

func TestSignedURLSignerWrongSecret(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("file-1", "folder-1/file-1.pdf")
	require.NoError(t, err)

	other := NewSignedURLSigner("different", time.Hour)
	_, _, _, err = other.Parse(token)
	require.Error(t, err)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", 10*time.Millisecond)
	token, _, err := signer.Generate("file-1", "folder-1/file-1.pdf")
	require.NoError(t, err)

	// Expiry is stored with second precision, so wait past the boundary.
	time.Sleep(1100 * time.Millisecond)
	_, _, _, err = signer.Parse(token)
	require.Error(t, err)
}

func TestSignedURLSignerMalformedToken(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	_, _, _, err := signer.Parse("not-a-token")
	require.Error(t, err)
}
