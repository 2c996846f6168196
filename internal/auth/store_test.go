// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useTempHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestLoadWithoutStoredCredential(t *testing.T) {
	useTempHome(t)

	_, err := LoadCredential()
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestSaveLoadClearRoundTrip(t *testing.T) {
	useTempHome(t)

	cred := Credential{Token: "tok-123", ExpiresAt: time.Now().Add(time.Hour).UTC()}
	require.NoError(t, SaveCredential(cred))

	path, err := CredentialsPath()
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "credential cache must be owner-only")

	loaded, err := LoadCredential()
	require.NoError(t, err)
	assert.Equal(t, cred.Token, loaded.Token)
	assert.True(t, cred.ExpiresAt.Equal(loaded.ExpiresAt))

	require.NoError(t, ClearCredential())
	_, err = LoadCredential()
	assert.ErrorIs(t, err, ErrNoCredential)

	// Logout is idempotent.
	assert.NoError(t, ClearCredential())
}

func TestLoadRejectsEmptyToken(t *testing.T) {
	useTempHome(t)

	require.NoError(t, SaveCredential(Credential{Token: "", ExpiresAt: time.Now()}))
	_, err := LoadCredential()
	assert.ErrorIs(t, err, ErrNoCredential)
}
