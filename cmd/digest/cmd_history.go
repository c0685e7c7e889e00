package main

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/chatdigest/internal/models"
	"github.com/eldtechnologies/chatdigest/internal/store"
)

const previewLen = 200

var historyLimit int

// statsCmd prints message and summary counts
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show message and summary counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()
		return printStats(cmd, d.store)
	},
}

// historyCmd lists recent digests
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List the most recent digests",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDeps(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()
		return printHistory(cmd, d.store, historyLimit)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 5, "number of digests to show")
}

func printStats(cmd *cobra.Command, ds store.DataStore) error {
	st, err := ds.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Messages:   %d total, %d pending, %d summarized\n",
		st.TotalMessages, st.PendingMessages, st.SummarizedMessages)
	fmt.Fprintf(out, "Chats:      %d\n", st.Chats)
	fmt.Fprintf(out, "Digests:    %d\n", st.Summaries)
	if st.LastSummaryAt != nil {
		fmt.Fprintf(out, "Last digest: %s\n", st.LastSummaryAt.Format(time.DateTime))
	}
	return nil
}

func printHistory(cmd *cobra.Command, ds store.DataStore, limit int) error {
	if limit < 1 {
		return fmt.Errorf("--limit must be positive")
	}
	sums, total, err := ds.ListSummaries(cmd.Context(), nil, limit, 0)
	if err != nil {
		return fmt.Errorf("list digests: %w", err)
	}

	out := cmd.OutOrStdout()
	if total == 0 {
		fmt.Fprintln(out, "No digests yet.")
		return nil
	}
	fmt.Fprintf(out, "Showing %d of %d digests\n", len(sums), total)
	for i := range sums {
		writeSummaryLine(out, &sums[i])
	}
	return nil
}

func writeSummaryLine(w io.Writer, s *models.Summary) {
	fmt.Fprintf(w, "\n#%d  %s  %s  %d messages\n", s.ID, s.CreatedAt.Format(time.DateTime), scopeLabel(s.Scope), s.MessageCount)
	fmt.Fprintln(w, preview(s.Text, previewLen))
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n-3]) + "..."
}
