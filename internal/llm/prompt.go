// Package llm builds review prompts, invokes the model provider and parses
// its structured replies.
package llm

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/sevigo/review-relay/internal/core"
)

//go:embed prompts/*.prompt
var promptFiles embed.FS

// systemPrompt fixes the model's role and the output contract. The reply
// shape is versioned implicitly by this text: the parser and the published
// Markdown both depend on the category order stated here.
const systemPrompt = `You are a senior software engineer doing a code review of a pull request diff.

Report findings in exactly four categories: security, architecture, performance, quality.

You MUST respond with ONLY a JSON object of this exact shape. No markdown, no explanation, no preamble.
{
  "findings": [
    {
      "category": "security|architecture|performance|quality",
      "severity": "critical|high|medium|low",
      "file": "relative/file/path",
      "line": 1,
      "message": "What is wrong and why it matters"
    }
  ]
}

If there are no issues, respond with {"findings": []}.`

type promptData struct {
	Categories         []core.Category
	RepoFullName       string
	PRNumber           int
	PRTitle            string
	HeadSHA            string
	CustomInstructions []string
	Diff               string
}

// PromptBuilder renders the user prompt from an embedded template. Build is
// pure: the same diff and metadata always produce byte-identical output.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder parses the embedded prompt template.
func NewPromptBuilder() (*PromptBuilder, error) {
	content, err := promptFiles.ReadFile("prompts/code_review_default.prompt")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded prompt file: %w", err)
	}
	tmpl, err := template.New("code_review").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("could not parse prompt template: %w", err)
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

// Build renders the instruction for the model. The diff is embedded verbatim
// inside a delimited section so its content is treated as data, not as
// directives.
func (b *PromptBuilder) Build(diff *core.DiffDocument, event *core.PullRequestEvent, repoCfg *core.RepoConfig) (*core.ReviewPrompt, error) {
	if diff == nil || diff.Text == "" {
		return nil, core.NewValidationError("diff document is empty")
	}
	if event == nil {
		return nil, core.NewValidationError("pull request metadata is missing")
	}
	if event.RepoFullName == "" || event.PRNumber <= 0 {
		return nil, core.NewValidationError("pull request metadata is incomplete")
	}

	var instructions []string
	if repoCfg != nil {
		instructions = repoCfg.CustomInstructions
	}

	var buf bytes.Buffer
	err := b.tmpl.Execute(&buf, promptData{
		Categories:         core.Categories(),
		RepoFullName:       event.RepoFullName,
		PRNumber:           event.PRNumber,
		PRTitle:            event.PRTitle,
		HeadSHA:            event.HeadSHA,
		CustomInstructions: instructions,
		Diff:               diff.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt template: %w", err)
	}

	return &core.ReviewPrompt{
		System: systemPrompt,
		User:   buf.String(),
	}, nil
}
