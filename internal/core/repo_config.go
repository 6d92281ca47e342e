package core

import (
	"path"
	"strings"
)

// RepoConfig represents the structure of the optional .review-relay.yml file
// in a reviewed repository.
type RepoConfig struct {
	// Custom instructions appended to the review prompt.
	CustomInstructions []string `yaml:"custom_instructions"`

	// Path prefixes or glob patterns excluded from the diff before the
	// size limit is applied. Example: ["vendor/", "*.lock", "docs/"]
	ExcludePaths []string `yaml:"exclude_paths"`
}

// DefaultRepoConfig returns a config with default values.
func DefaultRepoConfig() *RepoConfig {
	return &RepoConfig{
		CustomInstructions: []string{},
		ExcludePaths:       []string{},
	}
}

// Excluded reports whether a changed file is excluded from review.
func (c *RepoConfig) Excluded(filename string) bool {
	for _, pattern := range c.ExcludePaths {
		if pattern == "" {
			continue
		}
		if strings.HasSuffix(pattern, "/") && strings.HasPrefix(filename, pattern) {
			return true
		}
		if ok, err := path.Match(pattern, filename); err == nil && ok {
			return true
		}
		if ok, err := path.Match(pattern, path.Base(filename)); err == nil && ok {
			return true
		}
	}
	return false
}
