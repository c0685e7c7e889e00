package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/eldtechnologies/chatdigest/internal/llm"
	"github.com/eldtechnologies/chatdigest/internal/models"
)

// statusCmd checks every collaborator
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the message store, Redis and the LLM service credentials",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.LLM.AuthTimeout+10*time.Second)
	defer cancel()

	d, err := openDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	out := cmd.OutOrStdout()
	healthy := true

	if err := d.store.Ping(ctx); err != nil {
		fmt.Fprintln(out, "Message store: FAIL:", err)
		healthy = false
	} else {
		fmt.Fprintln(out, "Message store: OK")
	}

	if d.redis == nil {
		fmt.Fprintln(out, "Redis: not configured (no cross-process run lock)")
	} else if err := d.redis.Ping(ctx); err != nil {
		fmt.Fprintln(out, "Redis: FAIL:", err)
		healthy = false
	} else {
		fmt.Fprintln(out, "Redis: OK")
		if owner, err := d.redis.ScopeLockHolder(ctx, models.AllChats()); err == nil && owner != "" {
			fmt.Fprintln(out, "  summary run in progress:", owner)
		}
	}

	if !checkLLM(ctx, out, newLLMClient()) {
		healthy = false
	}

	if !healthy {
		return errReported
	}
	return nil
}

// tokenSource is the part of the LLM client the status check exercises.
type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

func checkLLM(ctx context.Context, out io.Writer, c tokenSource) bool {
	start := time.Now()
	if _, err := c.Token(ctx); err != nil {
		fmt.Fprintf(out, "LLM service: FAIL (%s)\n%s\n", llm.KindOf(err), llm.Describe(err))
		return false
	}
	fmt.Fprintf(out, "LLM service: OK (token issued in %s)\n", time.Since(start).Round(time.Millisecond))
	return true
}
