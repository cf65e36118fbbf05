package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mixedText = `Customer reports the dashboard is broken, please help.
TypeError: Cannot read properties of undefined
    at render (https://app.example.com/static/app.js:10:5)
Related to case 05908032, see https://app.example.com/checkout`

func TestAnalyze_ContentTypes(t *testing.T) {
	d := New()
	tests := []struct {
		name string
		text string
		want ContentType
	}{
		{"bare case number", "05908032", TypeCaseNumber},
		{"padded case number", "  05908032\n", TypeCaseNumber},
		{"labeled case", "Case #05908032", TypeCaseNumber},
		{"labeled ticket", "ticket 12345678", TypeCaseNumber},
		{"hash case", "#12345678", TypeCaseNumber},
		{"seven digits", "1234567", TypePlainText},
		{"nine digits", "123456789", TypePlainText},
		{"image", "data:image/png;base64,iVBORw0KGgo=", TypeImage},
		{"console", "Uncaught TypeError: Cannot read properties of undefined (reading 'map')\n" +
			"    at App.render (app.js:10:5)\n    at main.js:3:1", TypeConsoleLog},
		{"url", "https://example.com/some/long/path", TypeURLLink},
		{"support", "Hi, I need help, the dashboard is broken and I cannot export.", TypeSupportRequest},
		{"long prose", "The quarterly numbers look fine to me and the slides are ready for the meeting.", TypeSupportRequest},
		{"short prose", "thanks!", TypePlainText},
		{"mixed", mixedText, TypeMixedContent},
		{"empty", "", TypePlainText},
		{"whitespace", " \n\t ", TypePlainText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Analyze(tt.text, SourceClipboard)
			assert.Equal(t, tt.want, got.ContentType)
		})
	}
}

func TestAnalyze_CaseNumber(t *testing.T) {
	res := New().Analyze("05908032", "")
	require.Equal(t, TypeCaseNumber, res.ContentType)
	assert.Equal(t, []string{"05908032"}, res.Metadata.CaseNumbers)
	assert.Equal(t, "Case 05908032", res.SuggestedTitle)
	assert.Equal(t, SourceClipboard, res.Source)

	types := actionTypes(res.SuggestedActions)
	assert.Equal(t, []string{ActionSaveForLater, ActionLookupCase, ActionCreateRelatedCase}, types)
}

func TestAnalyze_NoCaseNumberInLongerDigitRuns(t *testing.T) {
	d := New()
	for _, text := range []string{"1234567", "order 1234567890 shipped", "ref ABC12345678"} {
		assert.Empty(t, d.Analyze(text, SourceClipboard).Metadata.CaseNumbers, "text %q", text)
	}
}

func TestAnalyze_StandaloneCaseNumbers(t *testing.T) {
	res := New().Analyze("See case 05908032 and 05908033 for context", SourceClipboard)
	assert.Equal(t, []string{"05908032", "05908033"}, res.Metadata.CaseNumbers)
}

func TestAnalyze_Mixed(t *testing.T) {
	res := New().Analyze(mixedText, SourceDragDrop)
	require.Equal(t, TypeMixedContent, res.ContentType)
	assert.Equal(t, SourceDragDrop, res.Source)
	assert.Equal(t, ClassError, res.Classification)
	assert.Equal(t, PriorityHigh, res.Priority)
	assert.Equal(t, []string{"05908032"}, res.Metadata.CaseNumbers)
	assert.Len(t, res.Metadata.URLs, 2)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)

	require.Len(t, res.SuggestedActions, 2)
	assert.Equal(t, ActionCreateCase, res.SuggestedActions[1].Type)
	assert.InDelta(t, 0.54, res.SuggestedActions[1].Confidence, 1e-9)

	require.NotNil(t, res.Metadata.TechnicalInfo)
	assert.Len(t, res.Metadata.TechnicalInfo.StackTrace, 1)
}

func TestAnalyze_ConsoleLog(t *testing.T) {
	text := "Uncaught TypeError: Cannot read properties of undefined (reading 'map')\n" +
		"    at App.render (app.js:10:5)\n    at main.js:3:1"
	res := New().Analyze(text, SourceClipboard)
	require.Equal(t, TypeConsoleLog, res.ContentType)
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
	assert.Equal(t, ClassError, res.Classification)
	assert.Equal(t, PriorityHigh, res.Priority, "console errors raise the default priority")
	assert.Equal(t, 3, res.Metadata.ConsoleErrorCount())
	assert.True(t, strings.HasPrefix(res.SuggestedTitle, "Console error: Uncaught TypeError"))
	assert.Equal(t, ActionAnalyzeLogs, res.SuggestedActions[1].Type)
}

func TestAnalyze_URLLink(t *testing.T) {
	res := New().Analyze("https://example.com/some/long/path.", SourceClipboard)
	require.Equal(t, TypeURLLink, res.ContentType)
	assert.Equal(t, []string{"https://example.com/some/long/path"}, res.Metadata.URLs)
	assert.Equal(t, "Link: example.com", res.SuggestedTitle)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
}

func TestAnalyze_Image(t *testing.T) {
	res := New().Analyze("data:image/png;base64,iVBORw0KGgo=", SourceFileUpload)
	require.Equal(t, TypeImage, res.ContentType)
	assert.Equal(t, "Pasted image", res.SuggestedTitle)
	assert.Equal(t, []string{ActionSaveForLater, ActionProcessImage}, actionTypes(res.SuggestedActions))
}

func TestAnalyze_Empty(t *testing.T) {
	res := New().Analyze("", "")
	assert.Equal(t, TypePlainText, res.ContentType)
	assert.Equal(t, ClassQuery, res.Classification)
	assert.Equal(t, "Untitled", res.SuggestedTitle)
	assert.Equal(t, []string{ActionSaveForLater}, actionTypes(res.SuggestedActions))
	assert.GreaterOrEqual(t, res.ProcessingTimeMs, 0.0)
}

func TestAnalyze_Support(t *testing.T) {
	res := New().Analyze("Hi, I need help, the dashboard is broken and I cannot export.", SourceClipboard)
	require.Equal(t, TypeSupportRequest, res.ContentType)
	assert.InDelta(t, 0.7, res.Confidence, 1e-9)
	assert.Equal(t, ClassQuery, res.Classification)
	require.Len(t, res.SuggestedActions, 2)
	assert.Equal(t, ActionCreateCase, res.SuggestedActions[1].Type)
	assert.InDelta(t, 0.7, res.SuggestedActions[1].Confidence, 1e-9)
}

func TestAnalyze_FeatureRequest(t *testing.T) {
	res := New().Analyze("Feature request: could you add dark mode", SourceClipboard)
	assert.Equal(t, ClassFeatureRequest, res.Classification)
}

func TestAnalyze_Urgency(t *testing.T) {
	d := New()
	tests := []struct {
		text     string
		urgency  string
		priority string
	}{
		{"Production down! This is critical", UrgencyCritical, PriorityUrgent},
		{"Please fix this asap", UrgencyHigh, PriorityHigh},
		{"No rush, whenever you can", UrgencyLow, PriorityLow},
		{"The export button moved", UrgencyMedium, PriorityMedium},
	}
	for _, tt := range tests {
		res := d.Analyze(tt.text, SourceClipboard)
		assert.Equal(t, tt.urgency, res.Metadata.UrgencyLevel, "text %q", tt.text)
		assert.Equal(t, tt.priority, res.Priority, "text %q", tt.text)
	}
}

func TestPriority(t *testing.T) {
	assert.Equal(t, PriorityHigh, priority(UrgencyLow, true))
	assert.Equal(t, PriorityHigh, priority(UrgencyMedium, true))
	assert.Equal(t, PriorityUrgent, priority(UrgencyCritical, true))
	assert.Equal(t, PriorityMedium, priority(UrgencyMedium, false))
	assert.Equal(t, PriorityLow, priority(UrgencyLow, false))
}

func TestAnalyze_CustomerAndTechnicalInfo(t *testing.T) {
	text := "From: Jane Doe <jane.doe@example.com>\n" +
		"Browser: Chrome/120.0.6099 on Windows NT 10.0"
	res := New().Analyze(text, SourceClipboard)

	require.NotNil(t, res.Metadata.CustomerInfo)
	assert.Equal(t, "jane.doe@example.com", res.Metadata.CustomerInfo.Email)
	assert.Equal(t, "Jane Doe", res.Metadata.CustomerInfo.Name)
	assert.InDelta(t, 0.8, res.Metadata.CustomerInfo.Confidence, 1e-9)

	require.NotNil(t, res.Metadata.TechnicalInfo)
	assert.Equal(t, "Chrome/120.0.6099", res.Metadata.TechnicalInfo.Browser)
	assert.Equal(t, "Windows NT 10.0", res.Metadata.TechnicalInfo.OS)
}

func TestAnalyze_NoExtractedFacts(t *testing.T) {
	res := New().Analyze("thanks!", SourceClipboard)
	assert.Nil(t, res.Metadata.CustomerInfo)
	assert.Nil(t, res.Metadata.TechnicalInfo)
	assert.Empty(t, res.Metadata.URLs)
	assert.Empty(t, res.Metadata.ConsoleLogs)
}

func TestAnalyze_ConfidenceAndActionsInvariants(t *testing.T) {
	d := New()
	inputs := []string{
		"", "05908032", "1234567", mixedText, "https://example.com",
		"data:image/gif;base64,R0lGOD", "ERROR: disk full\nWARN: retrying",
		strings.Repeat("word ", 500), "\x00\x01\x02", "日本語のテキスト",
	}
	for _, text := range inputs {
		res := d.Analyze(text, SourceClipboard)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		assert.LessOrEqual(t, res.Confidence, 1.0)
		require.NotEmpty(t, res.SuggestedActions)
		assert.Contains(t, actionTypes(res.SuggestedActions), ActionSaveForLater)
		for i := 1; i < len(res.SuggestedActions); i++ {
			assert.GreaterOrEqual(t, res.SuggestedActions[i-1].Confidence, res.SuggestedActions[i].Confidence)
		}
	}
}

func TestAnalyzeHTML(t *testing.T) {
	d := New()
	res := d.AnalyzeHTML("<p>Case #05908032</p>", SourceClipboard)
	assert.Equal(t, TypeCaseNumber, res.ContentType)

	res = d.AnalyzeHTML(`<div><b>Help</b>, the dashboard is <i>broken</i> &amp; I cannot log in</div>`, SourceClipboard)
	assert.Equal(t, TypeSupportRequest, res.ContentType)
	assert.NotContains(t, res.SuggestedTitle, "<")
	assert.Contains(t, res.SuggestedTitle, "&")
}

func TestConsoleLineRatio(t *testing.T) {
	assert.InDelta(t, 1.0/3.0, consoleLineRatio("a\nb\nerror: x"), 1e-9)
	assert.Equal(t, 0.0, consoleLineRatio("\n\n"))
}

func TestKeywordSet_WholeWords(t *testing.T) {
	ks := newKeywordSet("help", "not working")
	assert.Equal(t, []string{"help"}, ks.find(prepareText("Help!")))
	assert.Empty(t, ks.find(prepareText("helpful helper")))
	assert.Equal(t, []string{"not working"}, ks.find(prepareText("It's NOT   working.")))
}

func actionTypes(actions []Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = a.Type
	}
	return out
}
