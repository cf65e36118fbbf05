package mcpserver

// PatternFormatContract describes learned patterns for LLM consumers that
// teach or correct categories.
const PatternFormatContract = `# casekit Pattern Format

Categories are suggested from learned patterns plus built-in content
heuristics. Each pattern belongs to exactly one category.

## Pattern types

| type     | matches when                                               | score                         |
|----------|------------------------------------------------------------|-------------------------------|
| keyword  | the pattern's space-separated words occur in the text      | share of words found          |
| regex    | the case-insensitive regular expression matches            | 1 or 0                        |
| semantic | the text touches the pattern's topic groups (error, data,  | share of pattern topics found |
|          | auth, ui, api)                                             |                               |

A suggestion's confidence is score x pattern confidence x success rate.
Suggestions below 0.5 are dropped; at most three are returned.

## Teaching

1. Call learn_category with the text and the category a human chose. Up to
   three significant keywords (technical terms or repeated words) become a
   keyword pattern. Learning the same pattern again reinforces it.
2. After a suggestion was shown, call pattern_feedback with the pattern id
   and whether it was right. The success rate moves 10% toward 1 or 0.
3. Patterns whose success rate falls below 0.3 are removed by maintenance;
   near-identical patterns of one category are merged.

## Seed file

` + "```" + `yaml
patterns:
  - id: login-issues          # optional, derived from the definition when absent
    pattern: login password
    type: keyword             # keyword (default), regex or semantic
    category: access
    confidence: 0.8
` + "```" + `
`
