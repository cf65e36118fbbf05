// Package detector classifies raw text into a content type and extracts
// structured metadata from it.
package detector

import (
	"html"
	"math"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/starford/casekit/internal/textproc"
)

const (
	consoleLineThreshold = 0.3
	urlShareThreshold    = 0.5
	longTextThreshold    = 50
	minSupportKeywords   = 2
	maxTitleLength       = 80
)

// Detector analyses content. It is safe for concurrent use.
type Detector struct {
	sanitizer *bluemonday.Policy
	now       func() time.Time
}

// New returns a Detector.
func New() *Detector {
	return &Detector{
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}
}

// Analyze classifies text. It never fails; empty or pathological input
// yields a plain_text result.
func (d *Detector) Analyze(text string, source Source) *Result {
	start := d.now()
	if source == "" {
		source = SourceClipboard
	}

	trimmed := strings.TrimSpace(text)
	prepared := prepareText(text)
	meta := extractMetadata(text, prepared)
	supportHits := supportKeywords.find(prepared)

	contentType := classify(trimmed, meta, supportHits)

	res := &Result{
		ContentType:    contentType,
		Classification: classification(meta, prepared),
		Priority:       priority(meta.UrgencyLevel, meta.HasConsoleErrors()),
		SuggestedTitle: suggestedTitle(contentType, trimmed, meta),
		Metadata:       meta,
		Source:         source,
	}
	res.Confidence = confidence(contentType, meta)
	res.SuggestedActions = suggestActions(contentType, res.Confidence)
	res.ProcessingTimeMs = float64(d.now().Sub(start).Microseconds()) / 1000
	return res
}

// AnalyzeHTML strips markup from pasted HTML and analyses the remaining text.
func (d *Detector) AnalyzeHTML(markup string, source Source) *Result {
	return d.Analyze(d.StripHTML(markup), source)
}

// StripHTML returns the text content of markup.
func (d *Detector) StripHTML(markup string) string {
	return html.UnescapeString(d.sanitizer.Sanitize(markup))
}

// classify applies the content type rules, most specific first, then the
// mixed-content override. A bare case reference or an image is final.
func classify(trimmed string, meta Metadata, supportHits []string) ContentType {
	if trimmed == "" {
		return TypePlainText
	}
	if isCaseNumberReference(trimmed) {
		return TypeCaseNumber
	}
	if dataURLImageRe.MatchString(trimmed) {
		return TypeImage
	}

	base := TypePlainText
	switch {
	case consoleLineRatio(trimmed) > consoleLineThreshold:
		base = TypeConsoleLog
	case urlShare(trimmed, meta.URLs) > urlShareThreshold:
		base = TypeURLLink
	case len(supportHits) >= minSupportKeywords || len([]rune(trimmed)) > longTextThreshold:
		base = TypeSupportRequest
	}

	signals := 0
	for _, present := range []bool{
		len(meta.URLs) > 0,
		meta.HasConsoleErrors(),
		len(supportHits) >= minSupportKeywords,
		len(meta.CaseNumbers) > 0,
	} {
		if present {
			signals++
		}
	}
	if signals > 1 {
		return TypeMixedContent
	}
	return base
}

func urlShare(trimmed string, urls []string) float64 {
	if len(urls) == 0 || trimmed == "" {
		return 0
	}
	total := 0
	for _, u := range urls {
		total += len(u) * strings.Count(trimmed, u)
	}
	return float64(total) / float64(len(trimmed))
}

func classification(meta Metadata, prepared []byte) string {
	switch {
	case meta.HasConsoleErrors():
		return ClassError
	case featureKeywords.any(prepared):
		return ClassFeatureRequest
	default:
		return ClassQuery
	}
}

// priority maps urgency to priority. Console errors raise the default
// (and low) priority to high unless a critical signal already outranks it.
func priority(urgency string, consoleErrors bool) string {
	p := PriorityMedium
	switch urgency {
	case UrgencyCritical:
		p = PriorityUrgent
	case UrgencyHigh:
		p = PriorityHigh
	case UrgencyLow:
		p = PriorityLow
	}
	if consoleErrors && (p == PriorityMedium || p == PriorityLow) {
		p = PriorityHigh
	}
	return p
}

func confidence(contentType ContentType, meta Metadata) float64 {
	c := 0.5
	if contentType == TypeConsoleLog && meta.ConsoleErrorCount() >= 1 {
		c += 0.3
	}
	if contentType == TypeSupportRequest {
		c += 0.2
	}
	if len(meta.URLs) > 0 {
		c += 0.1
	}
	if meta.CustomerInfo != nil && meta.CustomerInfo.Confidence > 0.7 {
		c += 0.1
	}
	return math.Min(1.0, c)
}

func suggestedTitle(contentType ContentType, trimmed string, meta Metadata) string {
	switch contentType {
	case TypeCaseNumber:
		if len(meta.CaseNumbers) > 0 {
			return "Case " + meta.CaseNumbers[0]
		}
	case TypeImage:
		return "Pasted image"
	case TypeConsoleLog:
		for _, e := range meta.ConsoleLogs {
			if e.Level == LevelError {
				return "Console error: " + textproc.Truncate(e.Message, 60)
			}
		}
		if len(meta.ConsoleLogs) > 0 {
			return "Console log: " + textproc.Truncate(meta.ConsoleLogs[0].Message, 60)
		}
	case TypeURLLink:
		if len(meta.URLs) > 0 {
			return "Link: " + urlHost(meta.URLs[0])
		}
	}
	for _, line := range strings.Split(trimmed, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return textproc.Truncate(line, maxTitleLength)
		}
	}
	return "Untitled"
}
