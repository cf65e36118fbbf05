package detector

import (
	"net/url"
	"strings"

	"github.com/starford/casekit/internal/textproc"
)

const (
	maxErrorMessages = 10
	maxStackFrames   = 20
)

// extractMetadata gathers every fact the detector knows how to find,
// independent of the content type.
func extractMetadata(text string, prepared []byte) Metadata {
	return Metadata{
		URLs:          extractURLs(text),
		CaseNumbers:   extractCaseNumbers(text),
		ConsoleLogs:   extractConsoleLogs(text),
		TechnicalInfo: extractTechnicalInfo(text),
		CustomerInfo:  extractCustomerInfo(text),
		UrgencyLevel:  detectUrgency(prepared),
	}
}

func extractURLs(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, u := range urlRe.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;:!?")
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// extractCaseNumbers accepts a bare 8-digit text, the labeled forms and any
// standalone 8-digit run. Digits embedded in a longer token never count.
func extractCaseNumbers(text string) []string {
	trimmed := strings.TrimSpace(text)
	var out []string
	seen := make(map[string]struct{})
	add := func(n string) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	if caseNumberExactRe.MatchString(trimmed) {
		add(trimmed)
	}
	for _, re := range caseNumberLabeledRe {
		if m := re.FindStringSubmatch(trimmed); m != nil {
			add(m[1])
		}
	}
	for _, n := range textproc.EntitiesOfKind(text, textproc.EntityCaseNumber) {
		add(n)
	}
	return out
}

// isCaseNumberReference reports whether the whole trimmed text is a case
// reference.
func isCaseNumberReference(trimmed string) bool {
	if caseNumberExactRe.MatchString(trimmed) {
		return true
	}
	for _, re := range caseNumberLabeledRe {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}

func isConsoleLine(line string) bool {
	for _, re := range consoleSignatures {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// consoleLineRatio is the fraction of non-blank lines that look like
// console or log output.
func consoleLineRatio(text string) float64 {
	total, matched := 0, 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		total++
		if isConsoleLine(line) {
			matched++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matched) / float64(total)
}

func extractConsoleLogs(text string) []ConsoleLogEntry {
	var out []ConsoleLogEntry
	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !isConsoleLine(line) {
			continue
		}
		out = append(out, ConsoleLogEntry{
			Level:   sniffLevel(line),
			Message: trimmed,
			Line:    i + 1,
		})
	}
	return out
}

func sniffLevel(line string) string {
	lower := strings.ToLower(line)
	switch {
	case stackFrameRe.MatchString(line),
		strings.Contains(lower, "error"),
		strings.Contains(lower, "exception"),
		strings.Contains(lower, "uncaught"),
		strings.Contains(lower, "fatal"),
		strings.Contains(lower, "failed"):
		return LevelError
	case strings.Contains(lower, "warn"):
		return LevelWarn
	case strings.Contains(lower, "debug"), strings.Contains(lower, "trace"):
		return LevelDebug
	default:
		return LevelInfo
	}
}

func extractTechnicalInfo(text string) *TechnicalInfo {
	info := &TechnicalInfo{
		Browser: browserRe.FindString(text),
		OS:      osRe.FindString(text),
	}
	seen := make(map[string]struct{})
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if stackFrameRe.MatchString(line) {
			if len(info.StackTrace) < maxStackFrames {
				info.StackTrace = append(info.StackTrace, trimmed)
			}
			continue
		}
		if errorMessageRe.MatchString(trimmed + " ") {
			if _, ok := seen[trimmed]; ok || len(info.ErrorMessages) >= maxErrorMessages {
				continue
			}
			seen[trimmed] = struct{}{}
			info.ErrorMessages = append(info.ErrorMessages, trimmed)
		}
	}
	if info.Browser == "" && info.OS == "" && len(info.ErrorMessages) == 0 && len(info.StackTrace) == 0 {
		return nil
	}
	return info
}

func extractCustomerInfo(text string) *CustomerInfo {
	email := emailRe.FindString(text)
	name := ""
	for _, m := range personNameRe.FindAllStringSubmatch(text, -1) {
		if textproc.IsStopWord(strings.ToLower(m[1])) || textproc.IsStopWord(strings.ToLower(m[2])) {
			continue
		}
		name = m[0]
		break
	}
	if email == "" && name == "" {
		return nil
	}
	confidence := 0.6
	if email != "" {
		confidence = 0.8
	}
	return &CustomerInfo{Name: name, Email: email, Confidence: confidence}
}

// detectUrgency checks the tiers from most to least severe and defaults to
// medium.
func detectUrgency(prepared []byte) string {
	for _, tier := range urgencyTiers {
		if tier.set.any(prepared) {
			return tier.level
		}
	}
	return UrgencyMedium
}

func urlHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Host
}
