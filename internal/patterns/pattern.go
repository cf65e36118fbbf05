// Package patterns keeps the learned category patterns and turns pattern
// matches plus content heuristics into ranked category suggestions.
package patterns

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// EntityType is the store partition holding patterns.
const EntityType = "content_pattern"

// Type tells how a pattern string is matched against text.
type Type string

const (
	TypeKeyword  Type = "keyword"
	TypeRegex    Type = "regex"
	TypeSemantic Type = "semantic"
)

const (
	maxExamples       = 10
	maxMergedExamples = 5
	maxExampleLength  = 500
)

// ContentPattern is a persisted rule associating text with a category.
type ContentPattern struct {
	ID          string    `json:"id"`
	Pattern     string    `json:"pattern"`
	PatternType Type      `json:"pattern_type"`
	Category    string    `json:"category"`
	Confidence  float64   `json:"confidence"`
	Examples    []string  `json:"examples"`
	SuccessRate float64   `json:"success_rate"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the pattern fields. Regex patterns must compile.
func (p *ContentPattern) Validate() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Pattern, validation.Required, validation.When(p.PatternType == TypeRegex, validation.By(compiles))),
		validation.Field(&p.PatternType, validation.Required, validation.In(TypeKeyword, TypeRegex, TypeSemantic)),
		validation.Field(&p.Category, validation.Required),
		validation.Field(&p.Confidence, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&p.SuccessRate, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&p.Examples, validation.Length(0, maxExamples)),
	)
}

func compiles(value any) error {
	s, _ := value.(string)
	if _, err := regexp.Compile("(?i)" + s); err != nil {
		return validation.NewError("validation_regex", "must be a valid regular expression")
	}
	return nil
}

// Suggestion is a ranked category guess.
type Suggestion struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
	PatternIDs []string `json:"pattern_ids,omitempty"`
}

// Feedback reports whether a suggestion backed by a pattern was right.
type Feedback struct {
	PatternID string `json:"pattern_id"`
	Correct   bool   `json:"correct"`
}

// BatchReport counts the outcome of a batch operation. Failing items are
// skipped, never fatal.
type BatchReport struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	// Correct counts processed items marked correct.
	Correct int `json:"correct"`
}

// MaintenanceReport summarises a housekeeping run.
type MaintenanceReport struct {
	Merged  int `json:"merged"`
	Removed int `json:"removed"`
}

func clipExample(text string) string {
	r := []rune(text)
	if len(r) > maxExampleLength {
		r = r[:maxExampleLength]
	}
	return string(r)
}

func appendExample(examples []string, example string, limit int) []string {
	if example == "" {
		return examples
	}
	for _, e := range examples {
		if e == example {
			return examples
		}
	}
	if len(examples) >= limit {
		return examples
	}
	return append(examples, example)
}
