// Package gitstore is the persistence engine. The versioned object store is a
// git remote; every caller works against its own clone and pushes race
// against other instances, serialized only by the remote's fast-forward
// check. Conflict handling is policy-driven per target (see WriteMode).
package gitstore

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// WriteMode selects the conflict policy applied to a file when a push is
// rejected because the remote has diverged.
type WriteMode int

const (
	// Overwrite replaces the file; on conflict the local content is
	// restaged on top of the new remote tip.
	Overwrite WriteMode = iota
	// OverwriteRemoteWins replaces the file; on conflict the local change
	// is discarded and the remote version kept. Used for the hot shared
	// document. Two concurrent read-modify-write cycles can lose one
	// writer's update; that is the documented policy, not a bug.
	OverwriteRemoteWins
	// Append appends the content to whatever the current tip holds; on
	// conflict the entry is re-appended on top of the new remote tip, so
	// appends from both sides coexist.
	Append
)

// FileWrite is one staged write in a persist batch.
type FileWrite struct {
	Path    string
	Content []byte
	Mode    WriteMode
}

type Options struct {
	Dir         string
	RemoteURL   string
	Branch      string
	BotName     string
	BotEmail    string
	RetryBound  int
	BackoffBase time.Duration
}

// Store owns one clone of the shared repository.
type Store struct {
	dir         string
	branch      string
	botName     string
	botEmail    string
	retryBound  int
	backoffBase time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// Open opens the clone at opts.Dir, cloning from opts.RemoteURL first when
// the directory does not exist yet.
func Open(opts Options) (*Store, error) {
	if opts.Branch == "" {
		opts.Branch = "main"
	}
	if opts.RetryBound <= 0 {
		opts.RetryBound = 5
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 500 * time.Millisecond
	}

	if _, err := os.Stat(opts.Dir); errors.Is(err, os.ErrNotExist) {
		if opts.RemoteURL == "" {
			return nil, fmt.Errorf("clone %s: no remote url configured", opts.Dir)
		}
		_, err := git.PlainClone(opts.Dir, false, &git.CloneOptions{
			URL:           opts.RemoteURL,
			ReferenceName: plumbing.NewBranchReferenceName(opts.Branch),
			SingleBranch:  false,
		})
		if err != nil {
			return nil, fmt.Errorf("clone repo: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat repo dir: %w", err)
	}

	s := &Store{
		dir:         opts.Dir,
		branch:      opts.Branch,
		botName:     opts.BotName,
		botEmail:    opts.BotEmail,
		retryBound:  opts.RetryBound,
		backoffBase: opts.BackoffBase,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	repo, err := s.open()
	if err != nil {
		return nil, err
	}
	if err := s.checkout(repo, s.branch); err != nil {
		return nil, err
	}
	return s, nil
}

// Branch reports the branch persist operations target.
func (s *Store) Branch() string {
	return s.branch
}

// Head returns the current local tip hash of the main branch.
func (s *Store) Head() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.open()
	if err != nil {
		return "", err
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(s.branch), true)
	if err != nil {
		return "", fmt.Errorf("resolve branch %s: %w", s.branch, err)
	}
	return ref.Hash().String(), nil
}

// ReadFile returns the worktree content of path, or nil when the file does
// not exist.
func (s *Store) ReadFile(path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readWorktreeFile(path)
}

// PullLatest fast-forwards the clone to the remote tip of the main branch,
// discarding any local divergence.
func (s *Store) PullLatest() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.open()
	if err != nil {
		return err
	}
	if err := s.checkout(repo, s.branch); err != nil {
		return err
	}
	return s.resetToRemote(repo)
}

// EnsureBranch creates branchName at the current main tip if it does not
// exist yet.
func (s *Store) EnsureBranch(branchName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.open()
	if err != nil {
		return err
	}

	branchRef := plumbing.NewBranchReferenceName(branchName)
	if _, err := repo.Reference(branchRef, true); err == nil {
		return nil
	}

	mainRef, err := repo.Reference(plumbing.NewBranchReferenceName(s.branch), true)
	if err != nil {
		return fmt.Errorf("read %s ref: %w", s.branch, err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branchRef, mainRef.Hash())); err != nil {
		return fmt.Errorf("create branch ref: %w", err)
	}
	return nil
}

// CommitChangeSet writes a proposal change-set on branchName, commits it with
// the bot identity and pushes the branch. The worktree is returned to the
// main branch afterwards. Proposal branches are uncontended by construction,
// so only transient push failures are retried.
func (s *Store) CommitChangeSet(branchName string, files []FileWrite, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.open()
	if err != nil {
		return "", err
	}
	if err := s.checkout(repo, branchName); err != nil {
		return "", err
	}
	defer func() {
		_ = s.checkout(repo, s.branch)
	}()

	staged, err := s.stage(repo, files)
	if err != nil {
		return "", err
	}
	if !staged {
		head, err := repo.Head()
		if err != nil {
			return "", fmt.Errorf("read head: %w", err)
		}
		return head.Hash().String(), nil
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("open worktree: %w", err)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{Author: s.signature()})
	if err != nil {
		return "", fmt.Errorf("commit change-set: %w", err)
	}

	if err := s.pushWithRetry(repo, branchName); err != nil {
		return "", err
	}
	return hash.String(), nil
}

// ChangeSetContent reads the listed paths from the tip commit of branchName.
func (s *Store) ChangeSetContent(branchName string, paths []string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.open()
	if err != nil {
		return nil, err
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branchName), true)
	if err != nil {
		return nil, fmt.Errorf("resolve branch %s: %w", branchName, err)
	}
	commitObj, err := repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load commit object: %w", err)
	}

	out := make(map[string][]byte, len(paths))
	for _, path := range paths {
		file, err := commitObj.File(path)
		if err != nil {
			return nil, fmt.Errorf("load %s from branch %s: %w", path, branchName, err)
		}
		contents, err := file.Contents()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		out[path] = []byte(contents)
	}
	return out, nil
}

func (s *Store) open() (*git.Repository, error) {
	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Store) checkout(repo *git.Repository, branchName string) error {
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	branchRef := plumbing.NewBranchReferenceName(branchName)
	if _, err := repo.Reference(branchRef, true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Create: true}); err != nil {
				return fmt.Errorf("create branch checkout %s: %w", branchName, err)
			}
			return nil
		}
		return fmt.Errorf("resolve branch %s: %w", branchName, err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Branch: branchRef, Force: true}); err != nil {
		return fmt.Errorf("checkout branch %s: %w", branchName, err)
	}
	return nil
}

func (s *Store) signature() *object.Signature {
	return &object.Signature{
		Name:  s.botName,
		Email: s.botEmail,
		When:  time.Now(),
	}
}

func (s *Store) pushRefSpec(branchName string) gitconfig.RefSpec {
	return gitconfig.RefSpec(fmt.Sprintf("refs/heads/%s:refs/heads/%s", branchName, branchName))
}

func isNonFastForward(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "non-fast-forward")
}
