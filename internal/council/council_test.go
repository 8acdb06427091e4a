package council

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gitclaw/core/internal/board"
)

func TestParseVote(t *testing.T) {
	cases := []struct {
		body string
		want Vote
	}{
		{"Ship it. Move fast.\n\nVOTE: APPROVE", VoteApprove},
		{"The numbers don't lie.\nVOTE: REJECT", VoteReject},
		{"Need more data.\nVOTE: REVISE\n\n", VoteRevise},
		{"VOTE: APPROVE\nbut actually let me think more", VoteAbstain},
		{"Great work!\nvote: approve", VoteAbstain},
		{"VOTE: APPROVE!", VoteAbstain},
		{"VOTE:APPROVE", VoteAbstain},
		{"I have nothing to add.", VoteAbstain},
		{"", VoteAbstain},
		{"   \n\t\n", VoteAbstain},
		{"Looks fine.\n  VOTE: APPROVE  ", VoteApprove},
	}
	for _, tc := range cases {
		if got := ParseVote(tc.body); got != tc.want {
			t.Errorf("ParseVote(%q) = %v, want %v", tc.body, got, tc.want)
		}
	}
}

func messagesFor(votes ...string) []board.Message {
	msgs := make([]board.Message, len(votes))
	for i, v := range votes {
		body := "review text"
		if v != "" {
			body = fmt.Sprintf("review text\n\nVOTE: %s", v)
		}
		msgs[i] = board.Message{Author: fmt.Sprintf("seat-%d", i), Body: body}
	}
	return msgs
}

func TestQuorumBoundary(t *testing.T) {
	cases := []struct {
		name  string
		votes []string
		want  Decision
	}{
		{"four approve", []string{"APPROVE", "APPROVE", "APPROVE", "APPROVE", "REJECT", "REJECT", "REVISE"}, DecisionMerge},
		{"four reject", []string{"APPROVE", "APPROVE", "REJECT", "REJECT", "REJECT", "REJECT", "REVISE"}, DecisionClose},
		{"split", []string{"APPROVE", "APPROVE", "APPROVE", "REJECT", "REJECT", "REJECT", "REVISE"}, DecisionStall},
		{"abstain heavy", []string{"APPROVE", "APPROVE", "REJECT", "REJECT", "", "", ""}, DecisionStall},
	}
	for _, tc := range cases {
		result := Tally(messagesFor(tc.votes...), 7, 4)
		if result.Decision != tc.want {
			t.Errorf("%s: decision = %v, want %v (%s)", tc.name, result.Decision, tc.want, result)
		}
	}
}

func TestTallyCountsSilenceAsAbstention(t *testing.T) {
	// Only 4 of 7 seats posted; 1 of those is malformed.
	result := Tally(messagesFor("APPROVE", "APPROVE", "REJECT", ""), 7, 4)
	if result.Approve != 2 || result.Reject != 1 || result.Revise != 0 {
		t.Fatalf("unexpected counts: %s", result)
	}
	if result.Abstain != 4 {
		t.Fatalf("expected 4 abstentions (1 malformed + 3 silent), got %d", result.Abstain)
	}
	if result.Decision != DecisionStall {
		t.Fatalf("expected STALL, got %v", result.Decision)
	}
}

func TestTallyIsOrderIndependent(t *testing.T) {
	base := messagesFor("APPROVE", "APPROVE", "APPROVE", "APPROVE", "REJECT", "REVISE", "")
	want := Tally(base, 7, 4)

	// Every rotation and the reversal must tally identically.
	for shift := 1; shift < len(base); shift++ {
		rotated := append(append([]board.Message{}, base[shift:]...), base[:shift]...)
		if got := Tally(rotated, 7, 4); got != want {
			t.Fatalf("rotation %d: got %s, want %s", shift, got, want)
		}
	}
	reversed := make([]board.Message, len(base))
	for i, msg := range base {
		reversed[len(base)-1-i] = msg
	}
	if got := Tally(reversed, 7, 4); got != want {
		t.Fatalf("reversed: got %s, want %s", got, want)
	}
}

// memoryBoard is an append-only in-memory board for dispatch tests.
type memoryBoard struct {
	mu      sync.Mutex
	threads map[string][]board.Message
}

func newMemoryBoard() *memoryBoard {
	return &memoryBoard{threads: make(map[string][]board.Message)}
}

func (m *memoryBoard) Append(ctx context.Context, threadID, author, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[threadID] = append(m.threads[threadID], board.Message{
		Author: author, Body: body, PostedAt: time.Now(),
	})
	return nil
}

func (m *memoryBoard) List(ctx context.Context, threadID string) ([]board.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]board.Message{}, m.threads[threadID]...), nil
}

func TestDispatchWaitsForFullPanel(t *testing.T) {
	b := newMemoryBoard()
	seats := []string{"zuckerberg", "wonderful", "musk", "toly", "satoshi", "cia", "cobain"}

	review := func(ctx context.Context, seat string, req Request) (string, error) {
		return fmt.Sprintf("## %s\nLooks fine.\n\nVOTE: APPROVE", seat), nil
	}

	panel := NewPanel(seats, review, b, 5*time.Second)
	panel.Dispatch(context.Background(), Request{ProposalID: "prop_1", Title: "t", Diff: "d"})

	messages, err := b.List(context.Background(), "prop_1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(messages) != len(seats) {
		t.Fatalf("expected %d messages, got %d", len(seats), len(messages))
	}
	seen := map[string]int{}
	for _, msg := range messages {
		seen[msg.Author]++
	}
	for _, seat := range seats {
		if seen[seat] != 1 {
			t.Fatalf("seat %s posted %d messages", seat, seen[seat])
		}
	}
}

func TestDispatchTimeoutConvertsSilenceToAbstention(t *testing.T) {
	b := newMemoryBoard()
	seats := []string{"fast-1", "fast-2", "hung"}

	review := func(ctx context.Context, seat string, req Request) (string, error) {
		if seat == "hung" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "fine\n\nVOTE: APPROVE", nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	panel := NewPanel(seats, review, b, 100*time.Millisecond)
	start := time.Now()
	panel.Dispatch(ctx, Request{ProposalID: "prop_2"})
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("dispatch did not respect timeout: %s", elapsed)
	}

	messages, err := b.List(context.Background(), "prop_2")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	result := Tally(messages, len(seats), 2)
	if result.Approve != 2 || result.Abstain != 1 {
		t.Fatalf("unexpected tally: %s", result)
	}
}

func TestDispatchToleratesReviewerFailure(t *testing.T) {
	b := newMemoryBoard()
	seats := []string{"ok", "broken"}

	review := func(ctx context.Context, seat string, req Request) (string, error) {
		if seat == "broken" {
			return "", errors.New("reasoning service unavailable")
		}
		return "fine\n\nVOTE: APPROVE", nil
	}

	panel := NewPanel(seats, review, b, 200*time.Millisecond)
	panel.Dispatch(context.Background(), Request{ProposalID: "prop_3"})

	messages, err := b.List(context.Background(), "prop_3")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected the surviving seat's message only, got %d", len(messages))
	}
}
