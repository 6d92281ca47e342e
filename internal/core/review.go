// Package core defines the essential interfaces and data structures that form
// the backbone of the application. These components are designed to be
// abstract, allowing for flexible and decoupled implementations of the
// application's logic.
package core

import "time"

// Category is one of the fixed review categories requested from the model.
// The set is closed and its order is a contract shared by the prompt, the
// reply parser and the published Markdown.
type Category string

const (
	CategorySecurity     Category = "security"
	CategoryArchitecture Category = "architecture"
	CategoryPerformance  Category = "performance"
	CategoryQuality      Category = "quality"
)

var categoryOrder = []Category{
	CategorySecurity,
	CategoryArchitecture,
	CategoryPerformance,
	CategoryQuality,
}

// Categories returns the taxonomy in its fixed order.
func Categories() []Category {
	out := make([]Category, len(categoryOrder))
	copy(out, categoryOrder)
	return out
}

// Severity of a single finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// SeverityRank returns a numeric rank for sorting (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Finding is one discrete piece of review feedback. File and Line are
// best-effort locators taken from the model's reply.
type Finding struct {
	Severity Severity
	File     string
	Line     int
	Message  string
}

// ReviewResult holds one ordered list of findings per category. All four
// categories are always present; a category the model omitted simply has an
// empty list.
type ReviewResult struct {
	Findings map[Category][]Finding
	// Degraded marks a result built from the raw-text fallback after the
	// model reply could not be parsed into the expected structure.
	Degraded bool
}

// NewReviewResult returns a result with every category present and empty.
func NewReviewResult() *ReviewResult {
	r := &ReviewResult{Findings: make(map[Category][]Finding, len(categoryOrder))}
	for _, c := range categoryOrder {
		r.Findings[c] = []Finding{}
	}
	return r
}

// Add appends a finding to the given category. Findings in a category the
// taxonomy does not know are folded into quality rather than dropped.
func (r *ReviewResult) Add(c Category, f Finding) {
	if _, ok := r.Findings[c]; !ok {
		c = CategoryQuality
	}
	r.Findings[c] = append(r.Findings[c], f)
}

// Count returns the total number of findings across all categories.
func (r *ReviewResult) Count() int {
	n := 0
	for _, fs := range r.Findings {
		n += len(fs)
	}
	return n
}

// ReviewPrompt is the fully rendered instruction sent to the model. It is a
// deterministic function of the diff, the PR metadata and the taxonomy.
type ReviewPrompt struct {
	System string
	User   string
}

// DiffDocument is the normalized unified-diff text for one pull request.
type DiffDocument struct {
	Text      string
	ByteLen   int
	FileCount int
}

// AccessToken is a short-lived installation-scoped credential. It must never
// be used past expiry and never shared across installations.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token is still usable at the given time, keeping
// a safety margin before the actual expiry.
func (t AccessToken) Valid(now time.Time, margin time.Duration) bool {
	return t.Value != "" && now.Before(t.ExpiresAt.Add(-margin))
}

// PublishedComment is the receipt of a successfully created PR review.
type PublishedComment struct {
	ReviewID int64
}
