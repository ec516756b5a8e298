package inference

import "strings"

// Phi3StopWords end a turn for Phi-3 style prompts.
var Phi3StopWords = []string{"<|end|>", "<|user|>", "<|system|>"}

func normalizeStopWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// findStopWord returns where the earliest stop word in text starts, looking
// only at matches that end past offset from. Matches ending earlier were
// already seen by a previous call.
func findStopWord(text string, from int, words []string) (int, bool) {
	cut := -1
	for _, w := range words {
		start := max(0, from-len(w)+1)
		if start >= len(text) {
			continue
		}
		if i := strings.Index(text[start:], w); i >= 0 && (cut < 0 || start+i < cut) {
			cut = start + i
		}
	}
	return cut, cut >= 0
}

// StopFilter sits between Step and a client. It withholds text that may be
// the start of a stop word and drops everything from the first complete stop
// word on.
type StopFilter struct {
	words []string
	held  string
	done  bool
}

func NewStopFilter(words []string) *StopFilter {
	return &StopFilter{words: normalizeStopWords(words)}
}

// Push returns the part of s that is safe to show.
func (f *StopFilter) Push(s string) string {
	if f.done {
		return ""
	}
	buf := f.held + s
	cut := -1
	for _, w := range f.words {
		if i := strings.Index(buf, w); i >= 0 && (cut < 0 || i < cut) {
			cut = i
		}
	}
	if cut >= 0 {
		f.done = true
		f.held = ""
		return buf[:cut]
	}
	keep := 0
	for _, w := range f.words {
		for n := min(len(w)-1, len(buf)); n > keep; n-- {
			if strings.HasSuffix(buf, w[:n]) {
				keep = n
				break
			}
		}
	}
	f.held = buf[len(buf)-keep:]
	return buf[:len(buf)-keep]
}

// Flush releases withheld text once generation ended without a stop word.
func (f *StopFilter) Flush() string {
	out := f.held
	f.held = ""
	if f.done {
		return ""
	}
	return out
}
