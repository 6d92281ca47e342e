package github

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/sevigo/review-relay/internal/core"
)

// RepoConfigFile is the per-repository configuration file read from the PR
// head.
const RepoConfigFile = ".review-relay.yml"

// ErrRepoConfigNotFound indicates the repository carries no config file;
// callers get the defaults alongside it.
var ErrRepoConfigNotFound = errors.New("repo config file not found")

// LoadRepoConfig fetches and parses the repository's .review-relay.yml at
// the event's head SHA. A missing file yields the defaults with
// ErrRepoConfigNotFound; a malformed file yields a parse error.
func LoadRepoConfig(ctx context.Context, client Client, event *core.PullRequestEvent) (*core.RepoConfig, error) {
	data, err := client.GetFileContent(ctx, event.RepoOwner, event.RepoName, RepoConfigFile, event.HeadSHA)
	if err != nil {
		return core.DefaultRepoConfig(), ErrRepoConfigNotFound
	}

	cfg := core.DefaultRepoConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", RepoConfigFile, err)
	}
	return cfg, nil
}
