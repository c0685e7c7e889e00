package summarizer

import (
	"context"
	"strings"
	"sync"
)

// fakeLLM answers completions with respond, keyed on the text after the
// instruction prefix.
type fakeLLM struct {
	mu      sync.Mutex
	respond func(text string) (string, error)
	inputs  []string
}

func (f *fakeLLM) Complete(_ context.Context, _, userText string) (string, error) {
	text := strings.TrimPrefix(userText, userPromptPrefix)
	f.mu.Lock()
	f.inputs = append(f.inputs, text)
	f.mu.Unlock()
	return f.respond(text)
}

func (f *fakeLLM) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func constant(out string) func(string) (string, error) {
	return func(string) (string, error) { return out, nil }
}
