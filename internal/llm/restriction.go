package llm

import "strings"

// DefaultRestrictionPhrases are wordings the upstream service uses when it
// declines to answer. They arrive as ordinary HTTP 200 completions.
var DefaultRestrictionPhrases = []string{
	"ограничен",
	"ограничены",
	"временно ограничены",
	"некорректные ответы",
	"чувствительные темы",
	"благодарим за понимание",
	"избежание неправильного толкования",
}

// RestrictionDetector recognises refusal responses by phrase.
type RestrictionDetector struct {
	phrases []string
}

// NewRestrictionDetector creates a detector for the given phrases,
// falling back to DefaultRestrictionPhrases when none are given.
func NewRestrictionDetector(phrases []string) *RestrictionDetector {
	if len(phrases) == 0 {
		phrases = DefaultRestrictionPhrases
	}
	d := &RestrictionDetector{phrases: make([]string, 0, len(phrases))}
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			d.phrases = append(d.phrases, p)
		}
	}
	return d
}

// Match returns the first phrase found in text, case-insensitively.
func (d *RestrictionDetector) Match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, p := range d.phrases {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}
