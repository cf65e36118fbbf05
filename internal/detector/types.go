package detector

// ContentType is the detected kind of a pasted or uploaded text.
type ContentType string

const (
	TypeCaseNumber     ContentType = "case_number"
	TypeImage          ContentType = "image"
	TypeConsoleLog     ContentType = "console_log"
	TypeURLLink        ContentType = "url_link"
	TypeSupportRequest ContentType = "support_request"
	TypeMixedContent   ContentType = "mixed_content"
	TypePlainText      ContentType = "plain_text"
)

// Source tags where content came from. It is informational only.
type Source string

const (
	SourceClipboard  Source = "clipboard"
	SourceDragDrop   Source = "drag-drop"
	SourceFileUpload Source = "file-upload"
)

// Classifications.
const (
	ClassError          = "error"
	ClassFeatureRequest = "feature_request"
	ClassQuery          = "query"
)

// Priorities.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Urgency levels.
const (
	UrgencyCritical = "critical"
	UrgencyHigh     = "high"
	UrgencyMedium   = "medium"
	UrgencyLow      = "low"
)

// Log levels of console entries.
const (
	LevelError = "error"
	LevelWarn  = "warn"
	LevelInfo  = "info"
	LevelDebug = "debug"
)

// Result is the outcome of analysing one piece of content.
type Result struct {
	ContentType      ContentType `json:"content_type"`
	Confidence       float64     `json:"confidence"`
	Classification   string      `json:"classification"`
	Priority         string      `json:"priority"`
	SuggestedTitle   string      `json:"suggested_title"`
	Metadata         Metadata    `json:"extracted_metadata"`
	SuggestedActions []Action    `json:"suggested_actions"`
	Source           Source      `json:"source"`
	ProcessingTimeMs float64     `json:"processing_time_ms"`
}

// Metadata is the optional bag of facts extracted from content. A nil or
// empty field means "not detected".
type Metadata struct {
	URLs           []string          `json:"urls,omitempty"`
	CaseNumbers    []string          `json:"case_numbers,omitempty"`
	ConsoleLogs    []ConsoleLogEntry `json:"console_logs,omitempty"`
	TechnicalInfo  *TechnicalInfo    `json:"technical_info,omitempty"`
	CustomerInfo   *CustomerInfo     `json:"customer_info,omitempty"`
	UrgencyLevel   string            `json:"urgency_level,omitempty"`
	PatternMatches []PatternMatch    `json:"pattern_matches,omitempty"`
	SimilarCases   []SimilarCase     `json:"similar_cases,omitempty"`
	IsDuplicate    bool              `json:"is_duplicate,omitempty"`
}

// ConsoleLogEntry is one line recognised as console or log output.
type ConsoleLogEntry struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Line    int    `json:"line"`
}

// TechnicalInfo collects environment details and error lines.
type TechnicalInfo struct {
	Browser       string   `json:"browser,omitempty"`
	OS            string   `json:"os,omitempty"`
	ErrorMessages []string `json:"error_messages,omitempty"`
	StackTrace    []string `json:"stack_trace,omitempty"`
}

// CustomerInfo is the best guess at who wrote the content.
type CustomerInfo struct {
	Name       string  `json:"name,omitempty"`
	Email      string  `json:"email,omitempty"`
	Confidence float64 `json:"confidence"`
}

// PatternMatch summarises a category suggestion backed by learned patterns.
type PatternMatch struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Patterns   []string `json:"patterns,omitempty"`
}

// SimilarCase summarises a historical record similar to the content.
type SimilarCase struct {
	ID         string  `json:"id"`
	Title      string  `json:"title,omitempty"`
	Similarity float64 `json:"similarity"`
}

// Action is a suggested next step for the caller.
type Action struct {
	Type       string  `json:"type"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// HasConsoleErrors reports whether any console entry is at error level.
func (m *Metadata) HasConsoleErrors() bool {
	return m.ConsoleErrorCount() > 0
}

// ConsoleErrorCount counts console entries at error level.
func (m *Metadata) ConsoleErrorCount() int {
	n := 0
	for _, e := range m.ConsoleLogs {
		if e.Level == LevelError {
			n++
		}
	}
	return n
}
