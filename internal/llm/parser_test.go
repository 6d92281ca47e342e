package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/review-relay/internal/core"
)

func TestParseReviewReplyCleanJSON(t *testing.T) {
	raw := `{
		"findings": [
			{"category": "security", "severity": "high", "file": "auth.go", "line": 12, "message": "token logged in plain text"},
			{"category": "performance", "severity": "medium", "file": "db.go", "line": 40, "message": "query inside loop"}
		]
	}`

	result := ParseReviewReply(raw)

	assert.False(t, result.Degraded)
	assert.Equal(t, 2, result.Count())

	require.Len(t, result.Findings[core.CategorySecurity], 1)
	finding := result.Findings[core.CategorySecurity][0]
	assert.Equal(t, core.SeverityHigh, finding.Severity)
	assert.Equal(t, "auth.go", finding.File)
	assert.Equal(t, 12, finding.Line)
	assert.Equal(t, "token logged in plain text", finding.Message)

	assert.Len(t, result.Findings[core.CategoryPerformance], 1)
}

func TestParseReviewReplyAbsentCategoriesAreEmpty(t *testing.T) {
	result := ParseReviewReply(`{"findings": [{"category": "security", "severity": "low", "message": "x"}]}`)

	for _, cat := range core.Categories() {
		_, ok := result.Findings[cat]
		assert.True(t, ok, "category %s must be present even when absent from the reply", cat)
	}
	assert.Empty(t, result.Findings[core.CategoryArchitecture])
	assert.Empty(t, result.Findings[core.CategoryPerformance])
	assert.Empty(t, result.Findings[core.CategoryQuality])
}

func TestParseReviewReplyNoFindings(t *testing.T) {
	result := ParseReviewReply(`{"findings": []}`)

	assert.False(t, result.Degraded)
	assert.Zero(t, result.Count())
}

func TestParseReviewReplyCodeFence(t *testing.T) {
	raw := "```json\n{\"findings\": [{\"category\": \"quality\", \"severity\": \"low\", \"message\": \"dead code\"}]}\n```"

	result := ParseReviewReply(raw)

	assert.False(t, result.Degraded)
	require.Len(t, result.Findings[core.CategoryQuality], 1)
	assert.Equal(t, "dead code", result.Findings[core.CategoryQuality][0].Message)
}

func TestParseReviewReplyPreamble(t *testing.T) {
	raw := `Here is my review of the changes:

{"findings": [{"category": "architecture", "severity": "medium", "message": "handler owns business logic"}]}

Let me know if you need more detail.`

	result := ParseReviewReply(raw)

	assert.False(t, result.Degraded)
	require.Len(t, result.Findings[core.CategoryArchitecture], 1)
}

func TestParseReviewReplyUnknownCategory(t *testing.T) {
	raw := `{"findings": [{"category": "style", "severity": "low", "message": "tabs vs spaces"}]}`

	result := ParseReviewReply(raw)

	assert.False(t, result.Degraded)
	assert.Empty(t, result.Findings[core.CategorySecurity])
	require.Len(t, result.Findings[core.CategoryQuality], 1, "unknown categories fold into quality")
}

func TestParseReviewReplyUnknownSeverity(t *testing.T) {
	raw := `{"findings": [{"category": "security", "severity": "catastrophic", "message": "x"}]}`

	result := ParseReviewReply(raw)
	require.Len(t, result.Findings[core.CategorySecurity], 1)
	assert.Equal(t, core.SeverityMedium, result.Findings[core.CategorySecurity][0].Severity)
}

func TestParseReviewReplySkipsEmptyMessages(t *testing.T) {
	raw := `{"findings": [
		{"category": "security", "severity": "high", "message": "  "},
		{"category": "security", "severity": "high", "message": "real finding"}
	]}`

	result := ParseReviewReply(raw)
	assert.Equal(t, 1, result.Count())
}

func TestParseReviewReplyDegradedFallback(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"prose", "The code looks mostly fine, but consider adding tests."},
		{"broken json", `{"findings": [{"category": "security",`},
		{"wrong shape", `{"results": ["not the contract"]}`},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ParseReviewReply(tt.raw)

			assert.True(t, result.Degraded)
			require.Len(t, result.Findings[core.CategoryQuality], 1)
			fallback := result.Findings[core.CategoryQuality][0]
			assert.Equal(t, core.SeverityLow, fallback.Severity)
			assert.Equal(t, strings.TrimSpace(tt.raw), fallback.Message, "raw reply must be preserved")
		})
	}
}
