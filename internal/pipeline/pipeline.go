// Package pipeline drives a proposal from raw generator output to a terminal
// decision. The stages are strictly ordered: parse, lint, branch commit,
// panel review, tally, then the decision's action. A proposal that fails the
// lint gate is discarded, never repaired.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"gitclaw/core/internal/archive"
	"gitclaw/core/internal/board"
	"gitclaw/core/internal/council"
	"gitclaw/core/internal/gitstore"
	"gitclaw/core/internal/journal"
	"gitclaw/core/internal/lint"
	"gitclaw/core/internal/proposal"
	"gitclaw/core/internal/state"
)

// Stage is where a proposal ended up. Every run terminates in exactly one
// of Rejected, Merged, Closed or Stalled.
type Stage string

const (
	StageRejected Stage = "REJECTED"
	StageMerged   Stage = "MERGED"
	StageClosed   Stage = "CLOSED"
	StageStalled  Stage = "STALLED"
)

// TallyRecorder is the optional audit sink. A nil recorder disables
// archiving without changing any other behavior.
type TallyRecorder interface {
	RecordTally(ctx context.Context, rec archive.TallyRecord) error
}

// Outcome reports what happened to one proposal.
type Outcome struct {
	Proposal proposal.Proposal
	Stage    Stage
	Tally    council.TallyResult
	Commit   string
	LintErr  error
}

type Orchestrator struct {
	store    *gitstore.Store
	gate     *lint.Gate
	panel    *council.Panel
	board    board.Board
	journal  *journal.Journal
	state    *state.DocumentStore
	recorder TallyRecorder
	quorum   int
}

type Options struct {
	Store    *gitstore.Store
	Gate     *lint.Gate
	Panel    *council.Panel
	Board    board.Board
	Journal  *journal.Journal
	State    *state.DocumentStore
	Recorder TallyRecorder
	Quorum   int
}

func New(opts Options) *Orchestrator {
	return &Orchestrator{
		store:    opts.Store,
		gate:     opts.Gate,
		panel:    opts.Panel,
		board:    opts.Board,
		journal:  opts.Journal,
		state:    opts.State,
		recorder: opts.Recorder,
		quorum:   opts.Quorum,
	}
}

// Run takes raw generator output through the whole pipeline and returns the
// outcome. A non-nil error means the pipeline itself broke (unparseable
// payload, the branch commit failed); a rejected or stalled proposal is a
// normal outcome, not an error. Audit writes are best effort: a failed
// journal, state or archive write is logged and the run still succeeds.
func (o *Orchestrator) Run(ctx context.Context, raw []byte) (Outcome, error) {
	prop, err := proposal.Parse(raw)
	if err != nil {
		return Outcome{}, fmt.Errorf("parse proposal: %w", err)
	}

	if err := o.gate.Check(prop); err != nil {
		log.Printf("pipeline: proposal %s rejected by lint gate: %v", prop.ID, err)
		o.recordRejection(ctx, prop, err)
		return Outcome{Proposal: prop, Stage: StageRejected, LintErr: err}, nil
	}

	if err := o.store.EnsureBranch(prop.BranchName); err != nil {
		return Outcome{Proposal: prop, Stage: StageRejected}, fmt.Errorf("ensure branch: %w", err)
	}
	files := make([]gitstore.FileWrite, len(prop.Files))
	for i, f := range prop.Files {
		files[i] = gitstore.FileWrite{Path: f.Path, Content: []byte(f.Content), Mode: gitstore.Overwrite}
	}
	commit, err := o.store.CommitChangeSet(prop.BranchName, files, "proposal: "+prop.Title)
	if err != nil {
		return Outcome{Proposal: prop, Stage: StageRejected}, fmt.Errorf("commit change-set: %w", err)
	}

	o.panel.Dispatch(ctx, council.Request{
		ProposalID:  prop.ID,
		Title:       prop.Title,
		Description: prop.Description,
		Diff:        prop.Diff(),
	})

	messages, err := o.board.List(ctx, prop.ID)
	if err != nil {
		log.Printf("pipeline: reading thread %s failed, tallying as all-silent: %v", prop.ID, err)
		messages = nil
	}
	tally := council.Tally(messages, o.panel.Size(), o.quorum)

	stage := StageStalled
	switch tally.Decision {
	case council.DecisionMerge:
		if err := o.store.MergeIntoMain(ctx, prop.BranchName, prop.Paths(),
			"Merge proposal: "+prop.Title); err != nil {
			return Outcome{Proposal: prop, Stage: StageStalled, Tally: tally, Commit: commit},
				fmt.Errorf("merge into %s: %w", o.store.Branch(), err)
		}
		stage = StageMerged
	case council.DecisionClose:
		stage = StageClosed
	}

	o.recordDecision(ctx, prop, tally, stage, messages)
	return Outcome{Proposal: prop, Stage: stage, Tally: tally, Commit: commit}, nil
}

func (o *Orchestrator) recordRejection(ctx context.Context, prop proposal.Proposal, lintErr error) {
	body := fmt.Sprintf("Proposal **%s** (%s) rejected before review.\n\nReason: %v",
		prop.Title, prop.ID, lintErr)
	if err := o.journal.Append(ctx, "council", prop.ID+".md", body); err != nil {
		log.Printf("pipeline: journaling rejection of %s failed: %v", prop.ID, err)
	}
	if err := o.state.BumpStat(ctx, "proposals_rejected", 1); err != nil {
		log.Printf("pipeline: bumping rejection counter failed: %v", err)
	}
}

func (o *Orchestrator) recordDecision(ctx context.Context, prop proposal.Proposal,
	tally council.TallyResult, stage Stage, messages []board.Message) {

	if err := o.journal.Append(ctx, "council", prop.ID+".md", transcript(prop, tally, stage, messages)); err != nil {
		log.Printf("pipeline: journaling decision for %s failed: %v", prop.ID, err)
	}

	counter, xp := "proposals_stalled", 10
	switch stage {
	case StageMerged:
		counter, xp = "proposals_merged", 50
	case StageClosed:
		counter, xp = "proposals_closed", 5
	}
	if err := o.state.BumpStat(ctx, counter, 1); err != nil {
		log.Printf("pipeline: bumping %s failed: %v", counter, err)
	}
	if err := o.state.AwardXP(ctx, xp); err != nil {
		log.Printf("pipeline: awarding xp for %s failed: %v", prop.ID, err)
	}

	if o.recorder != nil {
		rec := archive.TallyRecord{
			ProposalID: prop.ID,
			Title:      prop.Title,
			Branch:     prop.BranchName,
			Approve:    tally.Approve,
			Reject:     tally.Reject,
			Revise:     tally.Revise,
			Abstain:    tally.Abstain,
			Decision:   string(tally.Decision),
		}
		if err := o.recorder.RecordTally(ctx, rec); err != nil {
			log.Printf("pipeline: archiving tally for %s failed: %v", prop.ID, err)
		}
	}
}

func transcript(prop proposal.Proposal, tally council.TallyResult, stage Stage,
	messages []board.Message) string {

	var b strings.Builder
	fmt.Fprintf(&b, "## %s (%s)\n\n", prop.Title, prop.ID)
	fmt.Fprintf(&b, "Branch: `%s`\n\n", prop.BranchName)
	for _, msg := range messages {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", msg.Author, strings.TrimSpace(msg.Body))
	}
	fmt.Fprintf(&b, "**Tally:** %s\n\n**Outcome:** %s", tally, stage)
	return b.String()
}
