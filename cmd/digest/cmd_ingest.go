package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/chatdigest/internal/metrics"
	"github.com/eldtechnologies/chatdigest/internal/models"
	"github.com/eldtechnologies/chatdigest/internal/store"
)

// ingestCmd loads captured messages
var ingestCmd = &cobra.Command{
	Use:   "ingest [file|-]",
	Short: "Load messages from a JSON lines file",
	Long: `Load messages produced by the chat collector. Each line is one JSON
object: {"id": 1, "chat_id": -100, "sender": "alice", "text": "hi",
"date": "2024-01-01 10:00:00"}. Dates are RFC 3339 or "YYYY-MM-DD HH:MM:SS"
in UTC. Messages already stored are skipped. Reads stdin when the file is
"-" or omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	d, err := openDeps(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := ingest(cmd.Context(), d.store, in)
	fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d new messages (%d already stored).\n", res.inserted, res.duplicates)
	return err
}

type ingestResult struct {
	inserted   int
	duplicates int
}

// record is one line of collector output.
type record struct {
	ID     *int64  `json:"id"`
	ChatID *int64  `json:"chat_id"`
	Sender *string `json:"sender"`
	Text   *string `json:"text"`
	Date   string  `json:"date"`
}

func (r *record) message() (*models.Message, error) {
	if r.ID == nil || r.ChatID == nil {
		return nil, fmt.Errorf("id and chat_id are required")
	}
	ts, err := parseDate(r.Date)
	if err != nil {
		return nil, err
	}
	return &models.Message{ID: *r.ID, ChatID: *r.ChatID, Sender: r.Sender, Text: r.Text, Timestamp: ts}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateTime, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ingest saves every record of in. It stops at the first malformed line,
// keeping what was saved before it.
func ingest(ctx context.Context, ds store.DataStore, in io.Reader) (ingestResult, error) {
	var res ingestResult
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		msg, err := rec.message()
		if err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}

		inserted, err := ds.SaveMessage(ctx, msg)
		if err != nil {
			return res, fmt.Errorf("line %d: save: %w", line, err)
		}
		if inserted {
			res.inserted++
			metrics.MessagesIngested.Inc()
		} else {
			res.duplicates++
		}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("read input: %w", err)
	}

	logger.Info().Int("inserted", res.inserted).Int("duplicates", res.duplicates).Msg("ingest finished")
	return res, nil
}
