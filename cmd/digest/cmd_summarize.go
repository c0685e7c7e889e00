package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/chatdigest/internal/llm"
	"github.com/eldtechnologies/chatdigest/internal/models"
	"github.com/eldtechnologies/chatdigest/internal/summarizer"
)

// maxReplyLen is the longest single reply the chat platform accepts.
const maxReplyLen = 4000

var chatID int64

// summarizeCmd digests all pending messages
var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize all pending messages",
	Long: `Summarize every message that is not yet covered by a digest.

Without --chat all chats are summarized together. A failed run leaves every
message pending so the next run picks them up again.`,
	Args: cobra.NoArgs,
	RunE: runSummarize,
}

func init() {
	summarizeCmd.Flags().Int64Var(&chatID, "chat", 0, "summarize only this chat id")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	d, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	scope := models.AllChats()
	if cmd.Flags().Changed("chat") {
		scope = models.Chat(chatID)
	}

	return summarize(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), newPipeline(d, newLLMClient()), scope)
}

func summarize(ctx context.Context, out, errOut io.Writer, p *summarizer.Pipeline, scope models.Scope) error {
	res, err := p.Summarize(ctx, scope)
	if err != nil {
		reportFailure(errOut, err)
		return errReported
	}

	switch res.Outcome {
	case summarizer.OutcomeNothingPending:
		fmt.Fprintln(out, "No new messages to summarize.")
		return nil
	case summarizer.OutcomeNoText:
		fmt.Fprintf(out, "No text messages to summarize (%d non-text messages skipped).\n", res.Skipped)
		return nil
	}

	if res.LargeBacklog {
		fmt.Fprintf(errOut, "Warning: %d messages were summarized in one run; the digest may be less detailed.\n",
			res.Summary.MessageCount)
	}

	header := fmt.Sprintf("Digest #%d of %d messages (%s):", res.Summary.ID, res.Summary.MessageCount, scopeLabel(scope))
	if res.Skipped > 0 {
		header += fmt.Sprintf(" %d non-text messages skipped.", res.Skipped)
	}
	fmt.Fprintln(out, header)
	fmt.Fprintln(out)
	parts := splitReply(res.Summary.Text, maxReplyLen)
	for i, part := range parts {
		if i > 0 {
			fmt.Fprintf(out, "\n--- part %d/%d ---\n", i+1, len(parts))
		}
		fmt.Fprintln(out, part)
	}
	return nil
}

// reportFailure prints an actionable explanation of err.
func reportFailure(w io.Writer, err error) {
	var commitErr *summarizer.CommitError
	switch {
	case errors.Is(err, summarizer.ErrScopeBusy):
		fmt.Fprintln(w, "Another summary run for this scope is in progress. Try again when it finishes.")
	case errors.As(err, &commitErr):
		fmt.Fprintln(w, "The digest was generated but could not be saved; all messages stay pending.")
		fmt.Fprintln(w, "Error:", commitErr.Err)
		fmt.Fprintln(w, "Generated digest:")
		fmt.Fprintln(w, commitErr.Text)
	default:
		fmt.Fprintln(w, llm.Describe(err))
	}
}

func scopeLabel(scope models.Scope) string {
	if id, ok := scope.ChatID(); ok {
		return fmt.Sprintf("chat %d", id)
	}
	return "all chats"
}

// splitReply cuts text into pieces of at most limit characters, preferring
// to break at a newline, then at a space.
func splitReply(text string, limit int) []string {
	var parts []string
	for utf8.RuneCountInString(text) > limit {
		runes := []rune(text)
		cut := string(runes[:limit])
		at := strings.LastIndex(cut, "\n")
		if at <= 0 {
			at = strings.LastIndex(cut, " ")
		}
		if at <= 0 {
			at = len(cut)
		}
		if part := strings.TrimRight(text[:at], " \n"); part != "" {
			parts = append(parts, part)
		}
		text = strings.TrimLeft(text[at:], " \n")
	}
	if text != "" || len(parts) == 0 {
		parts = append(parts, text)
	}
	return parts
}
