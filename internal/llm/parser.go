package llm

import (
	"encoding/json"
	"strings"

	"github.com/sevigo/review-relay/internal/core"
)

// modelReply mirrors the JSON output shape requested by the system prompt.
type modelReply struct {
	Findings []modelFinding `json:"findings"`
}

type modelFinding struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Message  string `json:"message"`
}

// ParseReviewReply maps the model's reply onto the fixed category taxonomy.
// It handles common model quirks: a reply wrapped in ```json fences, or
// preamble/postamble text around the JSON object. A reply that cannot be
// parsed at all degrades to a single quality finding carrying the raw text
// rather than failing the run.
func ParseReviewReply(raw string) *core.ReviewResult {
	result := core.NewReviewResult()

	reply, ok := decodeReply(raw)
	if !ok {
		result.Degraded = true
		result.Add(core.CategoryQuality, core.Finding{
			Severity: core.SeverityLow,
			Message:  strings.TrimSpace(raw),
		})
		return result
	}

	for _, f := range reply.Findings {
		if strings.TrimSpace(f.Message) == "" {
			continue
		}
		result.Add(normalizeCategory(f.Category), core.Finding{
			Severity: normalizeSeverity(f.Severity),
			File:     strings.TrimSpace(f.File),
			Line:     f.Line,
			Message:  strings.TrimSpace(f.Message),
		})
	}
	return result
}

func decodeReply(raw string) (*modelReply, bool) {
	candidate := stripCodeFence(raw)

	// Tolerate preamble and postamble text around the JSON object.
	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	candidate = candidate[start : end+1]

	var reply modelReply
	if err := json.Unmarshal([]byte(candidate), &reply); err != nil {
		return nil, false
	}
	if reply.Findings == nil {
		// A JSON object without the findings key is not the contract shape.
		if !strings.Contains(candidate, "\"findings\"") {
			return nil, false
		}
	}
	return &reply, true
}

// stripCodeFence removes ```json ... ``` wrapping that some models add
// around their output.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	idx := strings.Index(trimmed, "\n")
	if idx < 0 {
		return s
	}
	inner := trimmed[idx+1:]
	if lastFence := strings.LastIndex(inner, "```"); lastFence >= 0 {
		inner = inner[:lastFence]
	}
	return strings.TrimSpace(inner)
}

func normalizeCategory(s string) core.Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "security":
		return core.CategorySecurity
	case "architecture", "architectural":
		return core.CategoryArchitecture
	case "performance":
		return core.CategoryPerformance
	case "quality", "code quality":
		return core.CategoryQuality
	default:
		// Unknown categories are folded into quality rather than dropped.
		return core.CategoryQuality
	}
}

func normalizeSeverity(s string) core.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return core.SeverityCritical
	case "high":
		return core.SeverityHigh
	case "medium":
		return core.SeverityMedium
	case "low":
		return core.SeverityLow
	default:
		return core.SeverityMedium
	}
}
