package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Review Relay - AI-assisted pull request reviews",
	Long: `Review Relay relays pull request diffs to an LLM and renders the
model's structured feedback, either in the terminal or as a PR comment.

The CLI authenticates with a personal access token (GITHUB_TOKEN) instead
of a GitHub App installation.`,
	SilenceUsage: true,
}
