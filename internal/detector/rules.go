package detector

import (
	"regexp"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/starford/casekit/internal/textproc"
)

var (
	caseNumberExactRe   = regexp.MustCompile(`^\d{8}$`)
	caseNumberLabeledRe = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^case\s*#?\s*(\d{8})$`),
		regexp.MustCompile(`(?i)^ticket\s*#?\s*(\d{8})$`),
		regexp.MustCompile(`^#(\d{8})$`),
	}

	dataURLImageRe = regexp.MustCompile(`(?i)^data:image/[a-z0-9.+\-]+[;,]`)
	urlRe          = regexp.MustCompile(`https?://[^\s<>"'()\[\]]+`)
	emailRe        = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	personNameRe   = regexp.MustCompile(`\b([A-Z][a-z]+) ([A-Z][a-z]+)\b`)

	consoleSignatures = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*console\.(log|error|warn|info|debug)\b`),
		regexp.MustCompile(`(?i)^\s*\[(error|warn|warning|info|debug|log|trace|fatal)\]`),
		regexp.MustCompile(`(?i)^\s*(error|warn|warning|info|debug|fatal)\s*[:\-]`),
		regexp.MustCompile(`(?i)\b(uncaught|unhandled)\b`),
		regexp.MustCompile(`\b[A-Za-z]*(Error|Exception)\b\s*:`),
		regexp.MustCompile(`^\s*at\s+\S`),
		regexp.MustCompile(`(?i)failed to load resource`),
		regexp.MustCompile(`(?i)\b(get|post|put|delete|patch)\s+https?://\S+\s+[45]\d\d\b`),
		regexp.MustCompile(`^\s*\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}`),
	}

	stackFrameRe   = regexp.MustCompile(`^\s*at\s+\S`)
	errorMessageRe = regexp.MustCompile(`(?i)\b[a-z]*(error|exception)\b[:\s]`)

	browserRe = regexp.MustCompile(`\b(Edg|Edge|OPR|Opera|Chrome|Firefox|Safari)/[\d.]+`)
	osRe      = regexp.MustCompile(`\b(Windows NT [\d.]+|Windows 1[01]|Mac OS X [\d_.]+|macOS [\w.]+|iPhone OS [\d_]+|Android [\d.]+|Ubuntu|Linux x86_64|Linux)\b`)
)

// keywordSet matches whole words and phrases in a single pass using an
// Aho-Corasick automaton. Keywords and input are padded with spaces so that
// only complete words match.
type keywordSet struct {
	words   []string
	matcher *ahocorasick.Matcher
}

func newKeywordSet(words ...string) *keywordSet {
	padded := make([]string, len(words))
	for i, w := range words {
		padded[i] = " " + strings.Join(strings.Fields(strings.ToLower(w)), " ") + " "
	}
	return &keywordSet{words: words, matcher: ahocorasick.NewStringMatcher(padded)}
}

// find returns the distinct keywords present in prepared text, in
// dictionary order.
func (k *keywordSet) find(prepared []byte) []string {
	hits := k.matcher.MatchThreadSafe(prepared)
	if len(hits) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(hits))
	for _, h := range hits {
		seen[h] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for i, w := range k.words {
		if _, ok := seen[i]; ok {
			out = append(out, w)
		}
	}
	return out
}

func (k *keywordSet) any(prepared []byte) bool {
	return len(k.find(prepared)) > 0
}

// prepareText lowercases text, turns punctuation into spaces, collapses
// whitespace and pads both ends with a space.
func prepareText(text string) []byte {
	fields := strings.Fields(textproc.StripPunctuation(strings.ToLower(text)))
	return []byte(" " + strings.Join(fields, " ") + " ")
}

var (
	supportKeywords = newKeywordSet(
		"help", "issue", "issues", "problem", "problems", "bug", "bugs", "error", "errors",
		"broken", "not working", "doesn t work", "unable", "cannot", "can t", "stuck",
		"urgent", "asap", "dashboard", "customer", "support", "please", "fix",
		"crash", "crashes", "fails", "failing", "question", "how do i", "how to",
	)

	featureKeywords = newKeywordSet(
		"feature", "feature request", "enhancement", "would be nice", "would like",
		"suggestion", "add support", "could you add", "wishlist", "improvement",
	)

	urgencyTiers = []struct {
		level string
		set   *keywordSet
	}{
		{UrgencyCritical, newKeywordSet(
			"critical", "emergency", "outage", "production down", "prod down", "system down",
			"site down", "sev1", "sev 1", "p1", "data loss", "security breach",
		)},
		{UrgencyHigh, newKeywordSet(
			"urgent", "urgently", "asap", "high priority", "important", "blocking", "blocker",
			"escalate", "escalated", "escalation", "immediately",
		)},
		{UrgencyMedium, newKeywordSet(
			"medium priority", "normal priority", "moderate", "soon",
		)},
		{UrgencyLow, newKeywordSet(
			"low priority", "no rush", "whenever", "minor", "nice to have", "when you get a chance",
		)},
	}
)
