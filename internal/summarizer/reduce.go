package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatdigest/internal/llm"
	"github.com/eldtechnologies/chatdigest/internal/metrics"
)

const (
	// DefaultBudget is the largest corpus, in characters, sent in one request.
	DefaultBudget = 30000
	// DefaultMaxDepth bounds how many fold passes one reduction may take.
	DefaultMaxDepth = 3

	// DefaultSystemPrompt steers the model towards plain, content-bound digests.
	DefaultSystemPrompt = "Ты – профессиональный ассистент для создания кратких выжимок текста. " +
		"Твоя задача - проанализировать предоставленный текст и создать информативную выжимку, " +
		"выделяя основные темы, ключевые моменты и важную информацию. " +
		"Отвечай только на основе предоставленного текста, избегая общих фраз и ограничений. " +
		"Создай конкретную и полезную выжимку."

	userPromptPrefix = "Проанализируй следующий текст и создай краткую информативную выжимку, " +
		"выделяя основные темы и ключевые моменты:\n\n"
)

// Reducer turns a corpus of any size into one digest through an LLM.
type Reducer struct {
	budget       int
	maxDepth     int
	systemPrompt string
	logger       zerolog.Logger
}

// ReducerOption configures a Reducer.
type ReducerOption func(*Reducer)

// WithBudget sets the per-request character budget.
func WithBudget(budget int) ReducerOption {
	return func(r *Reducer) {
		if budget > 0 {
			r.budget = budget
		}
	}
}

// WithMaxDepth sets the maximum number of fold passes.
func WithMaxDepth(depth int) ReducerOption {
	return func(r *Reducer) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(prompt string) ReducerOption {
	return func(r *Reducer) {
		if strings.TrimSpace(prompt) != "" {
			r.systemPrompt = prompt
		}
	}
}

// NewReducer creates a Reducer.
func NewReducer(logger zerolog.Logger, opts ...ReducerOption) *Reducer {
	r := &Reducer{
		budget:       DefaultBudget,
		maxDepth:     DefaultMaxDepth,
		systemPrompt: DefaultSystemPrompt,
		logger:       logger.With().Str("component", "reducer").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Budget returns the per-request character budget.
func (r *Reducer) Budget() int { return r.budget }

// Reduce summarizes text with llmc. Text within budget takes a single call
// whose failure is returned. Larger text is chunked; failed chunks become
// placeholders and the partial digests are folded into one. A failed fold
// returns the partial digests joined under part headers. When every chunk
// fails there is nothing to fold, and the last chunk error is returned.
func (r *Reducer) Reduce(ctx context.Context, llmc llm.Completer, text string) (string, error) {
	return r.reduce(ctx, llmc, text, 0)
}

func (r *Reducer) reduce(ctx context.Context, llmc llm.Completer, text string, depth int) (string, error) {
	if runeLen(text) <= r.budget {
		return r.complete(ctx, llmc, text, "single")
	}

	chunks := Chunk(text, r.budget)
	metrics.ChunksPerReduction.Observe(float64(len(chunks)))
	r.logger.Info().
		Int("chars", runeLen(text)).
		Int("chunks", len(chunks)).
		Int("depth", depth).
		Msg("text exceeds budget, summarizing in parts")

	parts := make([]string, len(chunks))
	var lastErr error
	failed := 0
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return "", &llm.Error{Kind: llm.KindTransport, Op: "reduce", Err: err}
		}
		r.logger.Debug().Int("chunk", i+1).Int("of", len(chunks)).Int("chars", runeLen(chunk)).Msg("summarizing chunk")

		out, err := r.complete(ctx, llmc, chunk, "map")
		if err != nil {
			r.logger.Warn().Err(err).Int("chunk", i+1).Str("kind", llm.KindOf(err).String()).Msg("chunk failed")
			parts[i] = failedPart(i + 1)
			lastErr = err
			failed++
			continue
		}
		parts[i] = out
	}

	if failed == len(chunks) {
		return "", lastErr
	}
	if len(parts) == 1 {
		return parts[0], nil
	}

	combined := joinParts(parts)
	if depth >= r.maxDepth {
		r.logger.Warn().Int("depth", depth).Msg("fold depth limit reached, returning parts")
		return combined, nil
	}
	if runeLen(combined) >= runeLen(text) {
		r.logger.Warn().Int("chars", runeLen(combined)).Msg("partial digests did not shrink, returning parts")
		return combined, nil
	}

	final, err := r.reduce(ctx, llmc, combined, depth+1)
	if err != nil {
		r.logger.Warn().Err(err).Msg("fold failed, returning parts")
		return combined, nil
	}
	return final, nil
}

// complete performs one labelled LLM call.
func (r *Reducer) complete(ctx context.Context, llmc llm.Completer, text, phase string) (string, error) {
	start := time.Now()
	out, err := llmc.Complete(ctx, r.systemPrompt, userPromptPrefix+text)
	metrics.LLMCallDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCalls.WithLabelValues(phase, llm.KindOf(err).String()).Inc()
		return "", err
	}
	metrics.LLMCalls.WithLabelValues(phase, "ok").Inc()
	return out, nil
}

func failedPart(n int) string {
	return fmt.Sprintf("[Part %d: processing error]", n)
}

// joinParts concatenates partial digests under numbered headers.
func joinParts(parts []string) string {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteString(paragraphSep)
		}
		fmt.Fprintf(&b, "Part %d:\n%s", i+1, p)
	}
	return b.String()
}
