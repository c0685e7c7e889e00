package summarizer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatdigest/internal/llm"
	"github.com/eldtechnologies/chatdigest/internal/metrics"
	"github.com/eldtechnologies/chatdigest/internal/models"
)

// LargeBacklog is the message count above which a run is flagged as large.
const LargeBacklog = 100

// ErrScopeBusy is returned when another run currently holds the scope.
var ErrScopeBusy = errors.New("another summary run holds this scope")

// Store is the persistence the pipeline reads from and commits to.
type Store interface {
	PendingMessages(ctx context.Context, scope models.Scope) ([]models.Message, error)
	CommitSummary(ctx context.Context, summary *models.Summary) error
}

// SessionOpener hands out an LLM session for one run.
type SessionOpener interface {
	Open(ctx context.Context) (llm.Completer, error)
}

// Locker serializes runs on the same scope across processes.
type Locker interface {
	TryLockScope(ctx context.Context, scope models.Scope, owner string) (release func(), ok bool, err error)
}

// Outcome tells how a successful run ended.
type Outcome int

const (
	// OutcomeSummarized means a summary was committed.
	OutcomeSummarized Outcome = iota
	// OutcomeNothingPending means the scope had no pending messages.
	OutcomeNothingPending
	// OutcomeNoText means pending messages exist but none carry text.
	OutcomeNoText
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSummarized:
		return "summarized"
	case OutcomeNothingPending:
		return "nothing_pending"
	case OutcomeNoText:
		return "no_text"
	default:
		return "unknown"
	}
}

// Result describes a completed run.
type Result struct {
	RunID        string
	Outcome      Outcome
	Summary      *models.Summary // set only for OutcomeSummarized
	Pending      int             // pending messages read from the store
	Skipped      int             // pending messages without text
	LargeBacklog bool
}

// CommitError is returned when a digest was generated but could not be stored.
// The digest text is kept so it is not lost.
type CommitError struct {
	Text string
	Err  error
}

func (e *CommitError) Error() string {
	return "commit summary: " + e.Err.Error()
}

func (e *CommitError) Unwrap() error { return e.Err }

// Pipeline summarizes pending messages and records the result.
type Pipeline struct {
	store   Store
	opener  SessionOpener
	reducer *Reducer
	locker  Locker
	logger  zerolog.Logger
	now     func() time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithLocker enables cross-process scope locking.
func WithLocker(l Locker) PipelineOption {
	return func(p *Pipeline) { p.locker = l }
}

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline creates a Pipeline.
func NewPipeline(store Store, opener SessionOpener, reducer *Reducer, logger zerolog.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:   store,
		opener:  opener,
		reducer: reducer,
		logger:  logger.With().Str("component", "pipeline").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Summarize digests every pending message of scope. On any failure nothing
// is written: no summary is created and no message changes state.
func (p *Pipeline) Summarize(ctx context.Context, scope models.Scope) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: ulid.Make().String()}
	logger := p.logger.With().Str("run_id", res.RunID).Str("scope", scope.String()).Logger()

	err := p.run(ctx, scope, res, logger)
	metrics.SummaryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		kind := llm.KindOf(err)
		metrics.SummaryRuns.WithLabelValues("failed").Inc()
		metrics.SummaryFailures.WithLabelValues(kind.String()).Inc()
		logger.Error().Err(err).Str("kind", kind.String()).Msg("summary run failed")
		return nil, err
	}

	metrics.SummaryRuns.WithLabelValues(res.Outcome.String()).Inc()
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, scope models.Scope, res *Result, logger zerolog.Logger) error {
	if p.locker != nil {
		release, ok, err := p.locker.TryLockScope(ctx, scope, res.RunID)
		if err != nil {
			return llm.Wrap("lock scope", err)
		}
		if !ok {
			return llm.Wrap("lock scope", ErrScopeBusy)
		}
		defer release()
	}

	msgs, err := p.store.PendingMessages(ctx, scope)
	if err != nil {
		return llm.Wrap("load pending messages", err)
	}
	res.Pending = len(msgs)
	if len(msgs) == 0 {
		res.Outcome = OutcomeNothingPending
		logger.Info().Msg("no pending messages")
		return nil
	}

	corpus := Render(msgs)
	res.Skipped = corpus.Skipped
	res.LargeBacklog = len(corpus.Covered) > LargeBacklog
	if len(corpus.Covered) == 0 {
		res.Outcome = OutcomeNoText
		logger.Info().Int("skipped", corpus.Skipped).Msg("pending messages carry no text")
		return nil
	}

	logger.Info().
		Int("messages", len(corpus.Covered)).
		Int("skipped", corpus.Skipped).
		Int("chars", runeLen(corpus.Text)).
		Msg("summarizing")

	session, err := p.opener.Open(ctx)
	if err != nil {
		return err
	}

	text, err := p.reducer.Reduce(ctx, session, corpus.Text)
	if err != nil {
		return llm.Wrap("reduce", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return &llm.Error{Kind: llm.KindAPI, Op: "reduce", Detail: "empty digest"}
	}

	summary := &models.Summary{
		Scope:        scope,
		Text:         text,
		Covered:      corpus.Covered,
		MessageCount: len(corpus.Covered),
		CreatedAt:    p.now().UTC(),
	}
	if err := p.store.CommitSummary(ctx, summary); err != nil {
		// The digest is logged in full so an operator can recover it.
		logger.Error().Err(err).Str("digest", text).Msg("generated digest could not be committed")
		return &CommitError{Text: text, Err: llm.Wrap("commit summary", err)}
	}

	metrics.MessagesSummarized.Add(float64(summary.MessageCount))
	res.Outcome = OutcomeSummarized
	res.Summary = summary
	logger.Info().
		Int64("summary_id", summary.ID).
		Int("messages", summary.MessageCount).
		Msgf("summary committed (%d chars)", runeLen(text))
	return nil
}
