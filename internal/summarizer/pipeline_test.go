package summarizer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/chatdigest/internal/llm"
	"github.com/eldtechnologies/chatdigest/internal/models"
	"github.com/eldtechnologies/chatdigest/internal/store"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

// fakeOpener hands out the same fake session and counts opens.
type fakeOpener struct {
	llm   *fakeLLM
	err   error
	opens int
}

func (o *fakeOpener) Open(context.Context) (llm.Completer, error) {
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	return o.llm, nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func save(t *testing.T, s store.DataStore, id, chatID int64, minute int, sender, text string) {
	t.Helper()
	m := &models.Message{ID: id, ChatID: chatID, Sender: ptr(sender), Text: ptr(text), Timestamp: t0.Add(time.Duration(minute) * time.Minute)}
	_, err := s.SaveMessage(context.Background(), m)
	require.NoError(t, err)
}

func newPipeline(s Store, o SessionOpener, opts ...PipelineOption) *Pipeline {
	opts = append([]PipelineOption{WithClock(func() time.Time { return t0.Add(time.Hour) })}, opts...)
	return NewPipeline(s, o, NewReducer(zerolog.Nop()), zerolog.Nop(), opts...)
}

func pendingIDs(t *testing.T, s store.DataStore, scope models.Scope) []int64 {
	t.Helper()
	msgs, err := s.PendingMessages(context.Background(), scope)
	require.NoError(t, err)
	ids := []int64{}
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestSummarizeCommitsAndSkipsNonText(t *testing.T) {
	s := newTestStore(t)
	save(t, s, 1, 100, 0, "alice", "hi")
	save(t, s, 2, 100, 1, "bob", models.NonTextSentinel)
	save(t, s, 3, 100, 2, "alice", "bye")
	o := &fakeOpener{llm: &fakeLLM{respond: constant("Greeting and farewell.")}}

	res, err := newPipeline(s, o).Summarize(context.Background(), models.Chat(100))
	require.NoError(t, err)

	assert.Equal(t, OutcomeSummarized, res.Outcome)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 3, res.Pending)
	assert.Equal(t, 1, res.Skipped)
	assert.False(t, res.LargeBacklog)
	require.NotNil(t, res.Summary)
	assert.Equal(t, "Greeting and farewell.", res.Summary.Text)
	assert.Equal(t, []int64{1, 3}, res.Summary.MessageIDs())
	assert.Equal(t, []string{"[2024-01-01 10:00:00] alice: hi\n\n[2024-01-01 10:02:00] alice: bye"}, o.llm.inputs)

	stored, err := s.GetSummary(context.Background(), res.Summary.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, t0.Add(time.Hour), stored.CreatedAt)
	assert.Equal(t, []int64{2}, pendingIDs(t, s, models.Chat(100)))

	// The media message stays pending but carries no text.
	res, err = newPipeline(s, o).Summarize(context.Background(), models.Chat(100))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoText, res.Outcome)
	assert.Nil(t, res.Summary)
	assert.Equal(t, 1, o.opens, "no session for a run without text")
}

func TestSummarizeNothingPending(t *testing.T) {
	s := newTestStore(t)
	save(t, s, 1, 200, 0, "x", "elsewhere")
	o := &fakeOpener{llm: &fakeLLM{respond: constant("unused")}}

	res, err := newPipeline(s, o).Summarize(context.Background(), models.Chat(100))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNothingPending, res.Outcome)
	assert.Zero(t, o.opens)
}

func TestSummarizeTwiceFindsNothingPending(t *testing.T) {
	s := newTestStore(t)
	save(t, s, 1, 100, 0, "alice", "hi")
	save(t, s, 2, 200, 1, "bob", "bye")
	o := &fakeOpener{llm: &fakeLLM{respond: constant("Short chat.")}}
	p := newPipeline(s, o)

	res, err := p.Summarize(context.Background(), models.AllChats())
	require.NoError(t, err)
	require.Equal(t, OutcomeSummarized, res.Outcome)
	assert.Equal(t, 1, o.opens)

	res, err = p.Summarize(context.Background(), models.AllChats())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNothingPending, res.Outcome)
	assert.Nil(t, res.Summary)
	assert.Zero(t, res.Pending)
	assert.Equal(t, 1, o.opens, "no session when nothing is pending")
	assert.Equal(t, 1, o.llm.calls())

	sums, total, err := s.ListSummaries(context.Background(), nil, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, sums, 1)
}

func TestSummarizeFailuresCommitNothing(t *testing.T) {
	tests := []struct {
		name   string
		opener *fakeOpener
		want   llm.Kind
	}{
		{
			name:   "auth",
			opener: &fakeOpener{err: &llm.Error{Kind: llm.KindAuth, StatusCode: 401}},
			want:   llm.KindAuth,
		},
		{
			name:   "configuration",
			opener: &fakeOpener{err: &llm.Error{Kind: llm.KindConfiguration}},
			want:   llm.KindConfiguration,
		},
		{
			name: "api",
			opener: &fakeOpener{llm: &fakeLLM{respond: func(string) (string, error) {
				return "", &llm.Error{Kind: llm.KindAPI, StatusCode: 500}
			}}},
			want: llm.KindAPI,
		},
		{
			name: "restriction",
			opener: &fakeOpener{llm: &fakeLLM{respond: func(string) (string, error) {
				return "", &llm.Error{Kind: llm.KindRestriction}
			}}},
			want: llm.KindRestriction,
		},
		{
			name:   "blank digest",
			opener: &fakeOpener{llm: &fakeLLM{respond: constant("  \n ")}},
			want:   llm.KindAPI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			save(t, s, 1, 100, 0, "a", "hi")
			save(t, s, 2, 100, 1, "b", "bye")

			res, err := newPipeline(s, tt.opener).Summarize(context.Background(), models.AllChats())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.want, llm.KindOf(err))

			assert.Equal(t, []int64{1, 2}, pendingIDs(t, s, models.AllChats()))
			st, err := s.Stats(context.Background())
			require.NoError(t, err)
			assert.Zero(t, st.Summaries)
		})
	}
}

func TestSummarizeLargeCorpusUsesChunks(t *testing.T) {
	s := newTestStore(t)
	for i := int64(1); i <= 120; i++ {
		save(t, s, i, 7, int(i), "user", fmt.Sprintf("message number %d %s", i, strings.Repeat("x", 40)))
	}
	f := &fakeLLM{respond: func(text string) (string, error) {
		if strings.HasPrefix(text, "Part 1:") {
			return "overall digest", nil
		}
		return "partial", nil
	}}
	p := NewPipeline(s, &fakeOpener{llm: f}, NewReducer(zerolog.Nop(), WithBudget(2000)), zerolog.Nop())

	res, err := p.Summarize(context.Background(), models.Chat(7))
	require.NoError(t, err)
	assert.True(t, res.LargeBacklog)
	assert.Equal(t, "overall digest", res.Summary.Text)
	assert.Equal(t, 120, res.Summary.MessageCount)
	assert.Greater(t, f.calls(), 2)
	assert.Empty(t, pendingIDs(t, s, models.Chat(7)))
}

// racingStore lets another run commit the same messages between read and commit.
type racingStore struct {
	*store.SQLiteStore
}

func (r racingStore) CommitSummary(ctx context.Context, sum *models.Summary) error {
	winner := &models.Summary{Scope: sum.Scope, Text: "winner", Covered: sum.Covered, CreatedAt: sum.CreatedAt}
	if err := r.SQLiteStore.CommitSummary(ctx, winner); err != nil {
		return err
	}
	return r.SQLiteStore.CommitSummary(ctx, sum)
}

func TestSummarizeLosesCommitRace(t *testing.T) {
	s := newTestStore(t)
	save(t, s, 1, 100, 0, "a", "hi")
	o := &fakeOpener{llm: &fakeLLM{respond: constant("late digest")}}

	_, err := newPipeline(racingStore{s}, o).Summarize(context.Background(), models.AllChats())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrAlreadySummarized)

	var ce *CommitError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "late digest", ce.Text)

	st, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, st.Summaries, "only the winning summary exists")
}

type fakeLocker struct {
	held     bool
	err      error
	released int
}

func (l *fakeLocker) TryLockScope(context.Context, models.Scope, string) (func(), bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	return func() { l.released++ }, true, nil
}

func TestSummarizeScopeLock(t *testing.T) {
	s := newTestStore(t)
	save(t, s, 1, 100, 0, "a", "hi")

	t.Run("busy", func(t *testing.T) {
		o := &fakeOpener{llm: &fakeLLM{respond: constant("x")}}
		_, err := newPipeline(s, o, WithLocker(&fakeLocker{held: true})).Summarize(context.Background(), models.AllChats())
		assert.ErrorIs(t, err, ErrScopeBusy)
		assert.Zero(t, o.opens)
	})

	t.Run("lock error", func(t *testing.T) {
		boom := errors.New("redis down")
		_, err := newPipeline(s, &fakeOpener{}, WithLocker(&fakeLocker{err: boom})).Summarize(context.Background(), models.AllChats())
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, llm.KindUnexpected, llm.KindOf(err))
	})

	t.Run("released after run", func(t *testing.T) {
		l := &fakeLocker{}
		o := &fakeOpener{llm: &fakeLLM{respond: constant("digest")}}
		res, err := newPipeline(s, o, WithLocker(l)).Summarize(context.Background(), models.AllChats())
		require.NoError(t, err)
		assert.Equal(t, OutcomeSummarized, res.Outcome)
		assert.Equal(t, 1, l.released)
	})
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "summarized", OutcomeSummarized.String())
	assert.Equal(t, "nothing_pending", OutcomeNothingPending.String())
	assert.Equal(t, "no_text", OutcomeNoText.String())
}
