// Package proposal models the change-sets the generator submits for review.
package proposal

import (
	"encoding/json"
	"fmt"
	"strings"

	"gitclaw/core/internal/util"
)

// FileChange is one complete file body in a change-set. Content is always a
// full file, never a partial patch.
type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Reason  string `json:"reason"`
}

// Proposal is immutable once it passes the lint gate; a failed lint discards
// it rather than repairing it.
type Proposal struct {
	ID              string             `json:"id,omitempty"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	BranchName      string             `json:"branch_name"`
	Files           []FileChange       `json:"files"`
	AlignmentScores map[string]float64 `json:"alignment_scores"`
	Goals           []string           `json:"goals"`
}

// Paths returns the change-set paths in order.
func (p *Proposal) Paths() []string {
	paths := make([]string, len(p.Files))
	for i, f := range p.Files {
		paths[i] = f.Path
	}
	return paths
}

// Diff renders the change-set for reviewers: path, rationale and the full
// proposed body per file. Reviewers see only this, never each other's
// messages.
func (p *Proposal) Diff() string {
	var b strings.Builder
	for _, f := range p.Files {
		fmt.Fprintf(&b, "### %s\n", f.Path)
		if f.Reason != "" {
			fmt.Fprintf(&b, "_%s_\n", f.Reason)
		}
		fmt.Fprintf(&b, "```\n%s\n```\n\n", strings.TrimRight(f.Content, "\n"))
	}
	return b.String()
}

// Parse decodes generator output into a Proposal. Generators wrap JSON in
// markdown code fences more often than not, so fences are stripped before
// decoding. A missing id is assigned here.
func Parse(raw []byte) (Proposal, error) {
	payload := extractJSON(string(raw))

	var p Proposal
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return Proposal{}, fmt.Errorf("decode proposal: %w", err)
	}
	if p.ID == "" {
		p.ID = util.NewID("prop")
	}
	return p, nil
}

// extractJSON strips a surrounding markdown code fence when present.
func extractJSON(s string) string {
	if idx := strings.Index(s, "```json"); idx >= 0 {
		rest := s[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	return strings.TrimSpace(s)
}
