// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jeranaias/tidechat-cli/internal/config"
	"github.com/jeranaias/tidechat-cli/internal/util"
)

// credentialsFile is the name of the on-disk credential cache inside the
// config directory.
const credentialsFile = "credentials.json"

// CredentialsPath returns the path of the credential cache file.
func CredentialsPath() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, credentialsFile), nil
}

// LoadCredential reads the cached credential. A missing file yields
// ErrNoCredential rather than an I/O error.
func LoadCredential() (Credential, error) {
	path, err := CredentialsPath()
	if err != nil {
		return Credential{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credential{}, ErrNoCredential
		}
		return Credential{}, fmt.Errorf("failed to read credentials: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return Credential{}, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if cred.IsZero() {
		return Credential{}, ErrNoCredential
	}
	return cred, nil
}

// SaveCredential writes the credential cache atomically.
// SECURITY: 0600 so only the owner can read the token.
func SaveCredential(cred Credential) error {
	path, err := CredentialsPath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	return util.AtomicWriteFile(path, data, 0600)
}

// ClearCredential removes the credential cache. Missing file is not an
// error (logout is idempotent).
func ClearCredential() error {
	path, err := CredentialsPath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}
