package gitstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

// ErrRetriesExhausted is returned once the push retry bound is spent.
// Callers treat it as non-fatal: log and continue the surrounding run.
var ErrRetriesExhausted = errors.New("push retries exhausted")

// Persist stages a single write on the main branch and pushes it. Writing
// byte-identical content is a success no-op that creates no new revision.
func (s *Store) Persist(ctx context.Context, file FileWrite, message string) error {
	return s.PersistMany(ctx, []FileWrite{file}, message)
}

// PersistMany stages a batch of writes as one commit and pushes it, retrying
// with jittered, growing backoff when the remote rejects the push. On
// divergence, each file in the batch is re-resolved per its WriteMode:
// remote-wins files drop out, overwrite files restage, append files
// re-append on top of the new tip.
func (s *Store) PersistMany(ctx context.Context, files []FileWrite, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.open()
	if err != nil {
		return err
	}
	if err := s.checkout(repo, s.branch); err != nil {
		return err
	}

	batch := make([]FileWrite, len(files))
	copy(batch, files)

	committed := false
	for attempt := 1; attempt <= s.retryBound; attempt++ {
		if attempt > 1 {
			if err := s.sleepJitter(ctx, attempt); err != nil {
				return err
			}
		}

		if !committed {
			staged, err := s.stage(repo, batch)
			if err != nil {
				// Restaging failed; fall back to the plain pull.
				// The pending writes are dropped for this attempt.
				log.Printf("gitstore: stage failed (attempt %d/%d), falling back to pull: %v",
					attempt, s.retryBound, err)
				if resetErr := s.resetToRemote(repo); resetErr != nil {
					log.Printf("gitstore: reset failed: %v", resetErr)
				}
				continue
			}
			if staged {
				worktree, err := repo.Worktree()
				if err != nil {
					return fmt.Errorf("open worktree: %w", err)
				}
				if _, err := worktree.Commit(message, &git.CommitOptions{Author: s.signature()}); err != nil {
					return fmt.Errorf("commit: %w", err)
				}
				committed = true
			}
		}

		err := s.push(repo, s.branch)
		if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}

		if isNonFastForward(err) {
			log.Printf("gitstore: push rejected, remote diverged (attempt %d/%d)",
				attempt, s.retryBound)
			if resetErr := s.resetToRemote(repo); resetErr != nil {
				log.Printf("gitstore: reset to remote tip failed: %v", resetErr)
				continue
			}
			committed = false
			batch = dropRemoteWins(batch)
			if len(batch) == 0 {
				// The whole batch targeted the hot document; the
				// remote version is kept as-is.
				log.Printf("gitstore: remote wins, local change discarded")
				return nil
			}
			continue
		}

		// Transient push failure; the local commit stands, retry the push.
		log.Printf("gitstore: push failed (attempt %d/%d): %v", attempt, s.retryBound, err)
	}

	return fmt.Errorf("persist %q after %d attempts: %w", message, s.retryBound, ErrRetriesExhausted)
}

// MergeIntoMain copies the listed change-set paths from the tip of
// sourceBranch onto main as a single commit, the copy-commit merge style the
// store uses everywhere. The merge itself goes through PersistMany, so a
// concurrent push to main is absorbed by the usual retry loop.
func (s *Store) MergeIntoMain(ctx context.Context, sourceBranch string, paths []string, message string) error {
	contents, err := s.ChangeSetContent(sourceBranch, paths)
	if err != nil {
		return err
	}

	batch := make([]FileWrite, 0, len(paths))
	for _, path := range paths {
		batch = append(batch, FileWrite{Path: path, Content: contents[path], Mode: Overwrite})
	}

	mergeMessage := fmt.Sprintf("%s\n\nmerge: source=%s target=%s mode=copy-commit", message, sourceBranch, s.branch)
	return s.PersistMany(ctx, batch, mergeMessage)
}

// stage writes the batch into the worktree per mode and adds the paths.
// Reports whether anything actually changed relative to HEAD.
func (s *Store) stage(repo *git.Repository, batch []FileWrite) (bool, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("open worktree: %w", err)
	}

	for _, fw := range batch {
		full := filepath.Join(s.dir, fw.Path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return false, fmt.Errorf("create dir for %s: %w", fw.Path, err)
		}

		content := fw.Content
		if fw.Mode == Append {
			existing, err := os.ReadFile(full)
			if err != nil && !errors.Is(err, os.ErrNotExist) {
				return false, fmt.Errorf("read append target %s: %w", fw.Path, err)
			}
			content = append(append([]byte{}, existing...), fw.Content...)
		}

		if err := os.WriteFile(full, content, 0o644); err != nil {
			return false, fmt.Errorf("write %s: %w", fw.Path, err)
		}
		if _, err := worktree.Add(fw.Path); err != nil {
			return false, fmt.Errorf("git add %s: %w", fw.Path, err)
		}
	}

	status, err := worktree.Status()
	if err != nil {
		return false, fmt.Errorf("read status: %w", err)
	}
	return !status.IsClean(), nil
}

// resetToRemote fetches and hard-resets the current branch to the remote
// tip, discarding local commits and worktree changes.
func (s *Store) resetToRemote(repo *git.Repository) error {
	err := repo.Fetch(&git.FetchOptions{RemoteName: "origin"})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch origin: %w", err)
	}

	remoteRef, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", s.branch), true)
	if err != nil {
		return fmt.Errorf("resolve origin/%s: %w", s.branch, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	if err := worktree.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: remoteRef.Hash()}); err != nil {
		return fmt.Errorf("reset to origin/%s: %w", s.branch, err)
	}
	return nil
}

func (s *Store) push(repo *git.Repository, branchName string) error {
	return repo.Push(&git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []gitconfig.RefSpec{s.pushRefSpec(branchName)},
	})
}

// pushWithRetry retries transient push failures with the usual backoff. A
// non-fast-forward rejection is surfaced to the caller: branches pushed this
// way are single-writer, so divergence means a misconfigured swarm.
func (s *Store) pushWithRetry(repo *git.Repository, branchName string) error {
	var lastErr error
	for attempt := 1; attempt <= s.retryBound; attempt++ {
		if attempt > 1 {
			if err := s.sleepJitter(context.Background(), attempt); err != nil {
				return err
			}
		}
		err := s.push(repo, branchName)
		if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		if isNonFastForward(err) {
			return fmt.Errorf("push branch %s: %w", branchName, err)
		}
		log.Printf("gitstore: push %s failed (attempt %d/%d): %v", branchName, attempt, s.retryBound, err)
		lastErr = err
	}
	return fmt.Errorf("push branch %s: %v: %w", branchName, lastErr, ErrRetriesExhausted)
}

// sleepJitter waits a randomized delay that grows with the attempt index, to
// desynchronize concurrent callers racing on the same remote.
func (s *Store) sleepJitter(ctx context.Context, attempt int) error {
	window := s.backoffBase * time.Duration(attempt)
	delay := window/2 + time.Duration(s.rng.Int63n(int64(window)))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) readWorktreeFile(path string) ([]byte, error) {
	content, err := os.ReadFile(filepath.Join(s.dir, path))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return content, nil
}

func dropRemoteWins(batch []FileWrite) []FileWrite {
	kept := batch[:0]
	for _, fw := range batch {
		if fw.Mode == OverwriteRemoteWins {
			continue
		}
		kept = append(kept, fw)
	}
	return kept
}
