package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"gitclaw/core/internal/gitstore"
)

func newTestStore(t *testing.T) *gitstore.Store {
	t.Helper()

	remoteDir := filepath.Join(t.TempDir(), "remote.git")
	if _, err := git.PlainInit(remoteDir, true); err != nil {
		t.Fatalf("init bare remote: %v", err)
	}

	seedDir := filepath.Join(t.TempDir(), "seed")
	repo, err := git.PlainInit(seedDir, false)
	if err != nil {
		t.Fatalf("init seed repo: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("open seed worktree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(seedDir, "README.md"), []byte("# swarm\n"), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	if _, err := worktree.Add("README.md"); err != nil {
		t.Fatalf("git add: %v", err)
	}
	hash, err := worktree.Commit("Seed", &git.CommitOptions{
		Author: &object.Signature{Name: "seed", Email: "seed@test", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("seed commit: %v", err)
	}
	mainRef := plumbing.NewBranchReferenceName("main")
	if err := repo.Storer.SetReference(plumbing.NewHashReference(mainRef, hash)); err != nil {
		t.Fatalf("set main ref: %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, mainRef)); err != nil {
		t.Fatalf("set HEAD: %v", err)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: "origin", URLs: []string{remoteDir}}); err != nil {
		t.Fatalf("add remote: %v", err)
	}
	if err := repo.Push(&git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{"refs/heads/main:refs/heads/main"},
	}); err != nil {
		t.Fatalf("seed push: %v", err)
	}

	store, err := gitstore.Open(gitstore.Options{
		Dir:         filepath.Join(t.TempDir(), "clone"),
		RemoteURL:   remoteDir,
		Branch:      "main",
		BotName:     "GitClaw",
		BotEmail:    "bot@gitclaw.dev",
		RetryBound:  5,
		BackoffBase: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("gitstore.Open() error = %v", err)
	}
	return store
}

func TestUpdateRoundTrip(t *testing.T) {
	docs := NewDocumentStore(newTestStore(t), "memory/state.json")
	ctx := context.Background()

	err := docs.Update(ctx, func(doc map[string]any) {
		doc["agent"] = map[string]any{"name": "GitClaw"}
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	doc := docs.Load(ctx)
	agent, ok := doc["agent"].(map[string]any)
	if !ok || agent["name"] != "GitClaw" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestCorruptDocumentIsFreshDefault(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Persist(ctx, gitstore.FileWrite{
		Path:    "memory/state.json",
		Content: []byte("{not json"),
		Mode:    gitstore.Overwrite,
	}, "Corrupt the state")
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	docs := NewDocumentStore(store, "memory/state.json")
	doc := docs.Load(ctx)
	if len(doc) != 0 {
		t.Fatalf("expected empty default for corrupt document, got %+v", doc)
	}

	// Updates proceed from the fresh default instead of failing the run.
	if err := docs.AwardXP(ctx, 10); err != nil {
		t.Fatalf("AwardXP() error = %v", err)
	}
	doc = docs.Load(ctx)
	if got := doc["xp"]; got != float64(10) {
		t.Fatalf("expected xp 10, got %v", got)
	}
}

func TestAwardXPAndStats(t *testing.T) {
	docs := NewDocumentStore(newTestStore(t), "memory/state.json")
	ctx := context.Background()

	if err := docs.AwardXP(ctx, 40); err != nil {
		t.Fatalf("AwardXP() error = %v", err)
	}
	if err := docs.AwardXP(ctx, 20); err != nil {
		t.Fatalf("AwardXP() error = %v", err)
	}
	if err := docs.BumpStat(ctx, "council_reviews", 1); err != nil {
		t.Fatalf("BumpStat() error = %v", err)
	}

	doc := docs.Load(ctx)
	if got := doc["xp"]; got != float64(60) {
		t.Fatalf("expected xp 60, got %v", got)
	}
	if got := doc["level"]; got != "Novice" {
		t.Fatalf("expected level Novice, got %v", got)
	}
	stats, _ := doc["stats"].(map[string]any)
	if got := stats["council_reviews"]; got != float64(1) {
		t.Fatalf("expected council_reviews 1, got %v", got)
	}
}

func TestLevelTable(t *testing.T) {
	cases := []struct {
		xp   int
		want string
	}{
		{0, "Unawakened"},
		{49, "Unawakened"},
		{50, "Novice"},
		{1200, "Master"},
		{10000, "Transcendent"},
		{99999, "Transcendent"},
	}
	for _, tc := range cases {
		if got := LevelFor(tc.xp); got != tc.want {
			t.Errorf("LevelFor(%d) = %q, want %q", tc.xp, got, tc.want)
		}
	}
}

func TestXPBar(t *testing.T) {
	if got := XPBar(25); got != "█████░░░░░ 25 XP" {
		t.Errorf("XPBar(25) = %q", got)
	}
	if got := XPBar(10000); got != "██████████ MAX" {
		t.Errorf("XPBar(10000) = %q", got)
	}
}
