package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gitclaw/core/internal/archive"
	"gitclaw/core/internal/board"
	"gitclaw/core/internal/config"
	"gitclaw/core/internal/council"
	"gitclaw/core/internal/gitstore"
	"gitclaw/core/internal/journal"
	"gitclaw/core/internal/lint"
	"gitclaw/core/internal/pipeline"
	"gitclaw/core/internal/reason"
	"gitclaw/core/internal/state"
)

// gitclaw reads one proposal payload (from the file named as the first
// argument, or stdin) and runs it through the review pipeline.
func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if strings.TrimSpace(cfg.RemoteURL) == "" {
		log.Fatalf("GITCLAW_REMOTE_URL is required")
	}

	store, err := gitstore.Open(gitstore.Options{
		Dir:         cfg.RepoDir,
		RemoteURL:   cfg.RemoteURL,
		Branch:      cfg.Branch,
		BotName:     cfg.BotName,
		BotEmail:    cfg.BotEmail,
		RetryBound:  cfg.RetryBound,
		BackoffBase: cfg.BackoffBase,
	})
	if err != nil {
		log.Fatalf("opening versioned store failed: %v", err)
	}

	redisBoard, err := board.NewRedisBoard(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisBoard.Close()

	var recorder pipeline.TallyRecorder
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := archive.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()
		archiveStore := archive.NewStore(db)
		if err := archiveStore.EnsureSchema(ctx); err != nil {
			log.Fatalf("archive schema failed: %v", err)
		}
		recorder = archiveStore
		log.Printf("Archiving tallies to Postgres")
	} else {
		log.Printf("DATABASE_URL unset, tally archive disabled")
	}

	reasoner := reason.New(cfg.OpenAIKey, cfg.OpenAIModel, cfg.MaxDiffSize)
	panel := council.NewPanel(cfg.Personas, reasoner.Review, redisBoard, cfg.ReviewTimeout)

	orch := pipeline.New(pipeline.Options{
		Store: store,
		Gate: lint.NewGate(lint.Options{
			AllowedDirs:  cfg.AllowedDirs,
			DeniedPaths:  cfg.DeniedPaths,
			MaxFiles:     cfg.MaxFiles,
			MaxTitleLen:  cfg.MaxTitleLen,
			ScoreAxes:    cfg.ScoreAxes,
			BranchPrefix: cfg.BranchPrefix,
		}),
		Panel:    panel,
		Board:    redisBoard,
		Journal:  journal.New(store, cfg.MemoryDir),
		State:    state.NewDocumentStore(store, cfg.StatePath),
		Recorder: recorder,
		Quorum:   cfg.Quorum,
	})

	raw, err := readPayload(os.Args[1:])
	if err != nil {
		log.Fatalf("reading proposal payload failed: %v", err)
	}

	outcome, err := orch.Run(ctx, raw)
	if err != nil {
		// A failed run must not cascade into a crashed instance; the
		// proposal simply stalls.
		log.Printf("pipeline failed: %v", err)
		fmt.Printf("proposal %s: %s\n", outcome.Proposal.ID, pipeline.StageStalled)
		return
	}

	fmt.Printf("proposal %s: %s\n", outcome.Proposal.ID, outcome.Stage)
	if outcome.Stage == pipeline.StageRejected {
		fmt.Printf("lint: %v\n", outcome.LintErr)
		return
	}
	fmt.Printf("tally: %s\n", outcome.Tally)
}

func readPayload(args []string) ([]byte, error) {
	if len(args) > 0 && args[0] != "-" {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", args[0], err)
		}
		return raw, nil
	}
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return raw, nil
}
