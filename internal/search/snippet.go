package search

import "strings"

const (
	snippetWindow = 150
	snippetStep   = 10
	ellipsis      = "..."
)

// Snippet returns the 150-character window of content containing the most
// distinct terms. Earlier windows win ties. Cut ends are marked with an
// ellipsis.
func Snippet(content string, terms []string) string {
	r := []rune(content)
	if len(r) <= snippetWindow {
		return content
	}

	bestStart, bestScore := 0, -1
	for start := 0; start < len(r); start += snippetStep {
		end := min(start+snippetWindow, len(r))
		window := string(r[start:end])
		score := 0
		for _, t := range terms {
			if strings.Contains(window, t) {
				score++
			}
		}
		if score > bestScore {
			bestStart, bestScore = start, score
		}
		if end == len(r) {
			break
		}
	}

	end := min(bestStart+snippetWindow, len(r))
	out := string(r[bestStart:end])
	if bestStart > 0 {
		out = ellipsis + out
	}
	if end < len(r) {
		out += ellipsis
	}
	return out
}
