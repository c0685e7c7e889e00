// Command digest summarizes pending chat messages and inspects the store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eldtechnologies/chatdigest/internal/config"
	"github.com/eldtechnologies/chatdigest/internal/llm"
	"github.com/eldtechnologies/chatdigest/internal/logging"
	"github.com/eldtechnologies/chatdigest/internal/store"
	"github.com/eldtechnologies/chatdigest/internal/summarizer"
)

var (
	cfg    *config.Config
	logger = zerolog.Nop()
)

// errReported is returned by commands that already explained their failure.
var errReported = errors.New("command failed")

// rootCmd is the base command
var rootCmd = &cobra.Command{
	Use:   "digest",
	Short: "Summarize collected chat messages with an LLM",
	Long: `digest reads the messages collected from group chats, asks the LLM
service for a digest of everything not yet summarized and records which
messages each digest covers.

Configuration comes from the environment (and a .env file when present).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfg == nil {
			cfg = config.Load()
			logger = logging.NewWithWriter(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}, cfg.LogLevel)
		}
	},
}

func init() {
	rootCmd.AddCommand(summarizeCmd, statusCmd, statsCmd, historyCmd, ingestCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		stop()
		os.Exit(1)
	}
}

// deps are the collaborators a command may need.
type deps struct {
	store store.DataStore
	redis *store.RedisStore // nil without REDIS_URL
}

func (d *deps) Close() {
	d.store.Close()
	if d.redis != nil {
		d.redis.Close()
	}
}

// openDeps connects to the message store and, when configured, Redis.
func openDeps(ctx context.Context) (*deps, error) {
	ds, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open message store: %w", err)
	}
	d := &deps{store: ds}

	if cfg.RedisURL != "" {
		d.redis, err = store.NewRedisStore(ctx, cfg.RedisURL, cfg.ScopeLockTTL, logger)
		if err != nil {
			ds.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
	}
	return d, nil
}

func newLLMClient() *llm.Client {
	return llm.NewClient(llm.Config{
		ClientID:           cfg.LLM.ClientID,
		ClientSecret:       cfg.LLM.ClientSecret,
		Scope:              cfg.LLM.Scope,
		AuthURL:            cfg.LLM.AuthURL,
		APIURL:             cfg.LLM.APIURL,
		Model:              cfg.LLM.Model,
		AuthTimeout:        cfg.LLM.AuthTimeout,
		CompletionTimeout:  cfg.LLM.CompletionTimeout,
		InsecureSkipVerify: cfg.LLM.InsecureSkipVerify,
		RestrictionPhrases: cfg.LLM.RestrictionPhrases,
	}, logger)
}

func newPipeline(d *deps, opener summarizer.SessionOpener) *summarizer.Pipeline {
	reducer := summarizer.NewReducer(logger,
		summarizer.WithBudget(cfg.ChunkBudget),
		summarizer.WithMaxDepth(cfg.MaxFoldDepth),
	)
	var opts []summarizer.PipelineOption
	if d.redis != nil {
		opts = append(opts, summarizer.WithLocker(d.redis))
	}
	return summarizer.NewPipeline(d.store, opener, reducer, logger, opts...)
}
