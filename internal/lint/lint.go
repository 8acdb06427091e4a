// Package lint is the pre-review gate: it can only reject a proposal, never
// repair one. A single structural failure discards the whole change-set.
package lint

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"gitclaw/core/internal/proposal"
)

// Error describes the first check a proposal failed.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func lintError(field, reason string) *Error {
	return &Error{Field: field, Reason: reason}
}

type Gate struct {
	allowedDirs []string
	deniedPaths []string
	maxFiles    int
	maxTitleLen int
	scoreAxes   []string
	branchRe    *regexp.Regexp
}

type Options struct {
	AllowedDirs  []string
	DeniedPaths  []string
	MaxFiles     int
	MaxTitleLen  int
	ScoreAxes    []string
	BranchPrefix string
}

func NewGate(opts Options) *Gate {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 3
	}
	if opts.MaxTitleLen <= 0 {
		opts.MaxTitleLen = 60
	}
	if opts.BranchPrefix == "" {
		opts.BranchPrefix = "feat/"
	}
	// <prefix><source>-<YYYYMMDD>-<three-word-slug>
	pattern := fmt.Sprintf(`^%s[a-z0-9]+-\d{8}-[a-z0-9]+-[a-z0-9]+-[a-z0-9]+$`,
		regexp.QuoteMeta(opts.BranchPrefix))
	return &Gate{
		allowedDirs: opts.AllowedDirs,
		deniedPaths: opts.DeniedPaths,
		maxFiles:    opts.MaxFiles,
		maxTitleLen: opts.MaxTitleLen,
		scoreAxes:   opts.ScoreAxes,
		branchRe:    regexp.MustCompile(pattern),
	}
}

// Check validates p structurally. Pure and synchronous; the proposal is
// never mutated. The first failure wins.
func (g *Gate) Check(p proposal.Proposal) error {
	if strings.TrimSpace(p.Title) == "" {
		return lintError("title", "must not be empty")
	}
	if len(p.Title) > g.maxTitleLen {
		return lintError("title", fmt.Sprintf("must be at most %d chars, got %d", g.maxTitleLen, len(p.Title)))
	}
	if strings.TrimSpace(p.Description) == "" {
		return lintError("description", "must not be empty")
	}
	if !g.branchRe.MatchString(p.BranchName) {
		return lintError("branch_name", fmt.Sprintf("%q does not match the required pattern", p.BranchName))
	}

	if len(p.Files) == 0 {
		return lintError("files", "change-set is empty")
	}
	if len(p.Files) > g.maxFiles {
		return lintError("files", fmt.Sprintf("at most %d files allowed, got %d", g.maxFiles, len(p.Files)))
	}
	for i, file := range p.Files {
		field := fmt.Sprintf("files[%d]", i)
		if err := g.checkPath(field, file.Path); err != nil {
			return err
		}
		if file.Content == "" {
			return lintError(field, "content must be a complete file body")
		}
		if err := checkSyntax(field, file.Path, file.Content); err != nil {
			return err
		}
	}

	for _, axis := range g.scoreAxes {
		score, ok := p.AlignmentScores[axis]
		if !ok {
			return lintError("alignment_scores", fmt.Sprintf("missing axis %q", axis))
		}
		if score < 0 || score > 1 {
			return lintError("alignment_scores", fmt.Sprintf("axis %q out of range: %v", axis, score))
		}
	}

	return nil
}

func (g *Gate) checkPath(field, p string) error {
	if p == "" {
		return lintError(field, "path must not be empty")
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return lintError(field, fmt.Sprintf("path %q must be relative with forward slashes", p))
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." || part == "." || part == "" {
			return lintError(field, fmt.Sprintf("path %q contains traversal", p))
		}
	}
	for _, denied := range g.deniedPaths {
		if p == denied || strings.HasPrefix(p, denied+"/") {
			return lintError(field, fmt.Sprintf("path %q touches protected path %q", p, denied))
		}
	}
	for _, allowed := range g.allowedDirs {
		if strings.HasPrefix(p, allowed+"/") {
			return nil
		}
	}
	return lintError(field, fmt.Sprintf("path %q is outside the allowed directories", p))
}

// checkSyntax parses structured file kinds; anything unparseable rejects the
// proposal. Other kinds pass on the non-empty check alone.
func checkSyntax(field, path, content string) error {
	switch {
	case strings.HasSuffix(path, ".json"):
		var v any
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			return lintError(field, fmt.Sprintf("%s is not valid JSON: %v", path, err))
		}
	case strings.HasSuffix(path, ".yml"), strings.HasSuffix(path, ".yaml"):
		var v any
		if err := yaml.Unmarshal([]byte(content), &v); err != nil {
			return lintError(field, fmt.Sprintf("%s is not valid YAML: %v", path, err))
		}
	}
	return nil
}
