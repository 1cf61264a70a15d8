// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads provider API keys from a directory of plain-text
// files. Each file holds one secret: the file name is the key name and the
// trimmed contents are the value.
//
// Recognized key files: openai-api-key, anthropic-api-key, gemini-api-key,
// openrouter-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/litbrief/pkg/types"
)

// KeyFile returns the secret file name holding the API key for provider.
func KeyFile(provider types.ProviderName) string {
	return string(provider) + "-api-key"
}

// Load reads all files in dir and returns a map of file name to trimmed
// contents. A missing directory is not an error; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string, logger *zap.Logger) (map[string]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}
	return secrets, nil
}

// ProviderKeys picks the API keys for the given providers out of loaded
// secrets. Providers without a key file are omitted.
func ProviderKeys(loaded map[string]string, providers []types.ProviderName) map[types.ProviderName]string {
	keys := make(map[types.ProviderName]string)
	for _, p := range providers {
		if v, ok := loaded[KeyFile(p)]; ok {
			keys[p] = v
		}
	}
	return keys
}
