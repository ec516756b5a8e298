package inference

import "strings"

// QueryPlaceholder marks where a PromptWrapper inserts the query.
const QueryPlaceholder = "{query}"

// PromptWrapper turns a raw query into the user turn text.
type PromptWrapper string

// Apply substitutes query into the wrapper. A wrapper without a
// placeholder is used as a prefix; an empty wrapper returns query as is.
func (w PromptWrapper) Apply(query string) string {
	switch {
	case w == "":
		return query
	case strings.Contains(string(w), QueryPlaceholder):
		return strings.ReplaceAll(string(w), QueryPlaceholder, query)
	default:
		return string(w) + query
	}
}
