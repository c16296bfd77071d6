// Package config loads application configuration from file, environment and flags.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves a leading ~ to the home directory and then expands $VAR
// references. An unresolvable home directory leaves the ~ in place.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}

// expandPaths rewrites every file system setting in place.
func (c *Config) expandPaths() {
	for _, p := range []*string{
		&c.Database.Path,
		&c.Gmail.TokenDir,
		&c.Classifier.RulesFile,
		&c.Objects.Root,
		&c.Objects.CredentialsFile,
		&c.LLM.ClaudeCodePath,
		&c.Sheets.ServiceAccountPath,
	} {
		*p = ExpandPath(*p)
	}
	for i, p := range c.Bank.OFXPaths {
		c.Bank.OFXPaths[i] = ExpandPath(p)
	}
}
