// Package reason invokes the external reasoning service that writes review
// text. The service is opaque to the rest of the pipeline: text in, text
// out. Failures degrade to a persona fallback review instead of an error, so
// a flaky provider never silences a council seat.
package reason

import (
	"context"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"gitclaw/core/internal/council"
)

type persona struct {
	Name         string
	Emoji        string
	Style        string
	FallbackText string
	FallbackVote string
}

var personas = map[string]persona{
	"zuckerberg": {"Mark Zuckerberg", "👓", "move-fast pragmatist obsessed with shipping",
		"Ship it. Move fast.", "VOTE: APPROVE"},
	"wonderful": {"Mr. Wonderful", "💰", "ruthless cost-benefit investor",
		"The numbers don't lie, but I can't see them right now.", "VOTE: REVISE"},
	"musk": {"Elon Musk", "🚀", "first-principles contrarian who deletes before optimizing",
		"Delete everything and start over. Actually, revise.", "VOTE: REVISE"},
	"toly": {"Toly", "⚡", "throughput-fixated systems engineer",
		"Need more data on throughput.", "VOTE: REVISE"},
	"satoshi": {"Satoshi Nakamoto", "₿", "trust-minimizing cryptographer",
		"Insufficient information to verify.", "VOTE: REVISE"},
	"cia": {"The CIA", "🕵️", "operational-security analyst who redacts liberally",
		"[REDACTED] — Unable to complete assessment.", "VOTE: REVISE"},
	"cobain": {"Kurt Cobain", "🎸", "disaffected perfectionist",
		"Whatever. Come back when it means something.", "VOTE: REVISE"},
}

type Service struct {
	client  *openai.Client
	model   string
	maxDiff int
}

func New(apiKey, model string, maxDiff int) *Service {
	if maxDiff <= 0 {
		maxDiff = 3000
	}
	return &Service{
		client:  openai.NewClient(apiKey),
		model:   model,
		maxDiff: maxDiff,
	}
}

// Review implements council.ReviewFunc.
func (s *Service) Review(ctx context.Context, seat string, req council.Request) (string, error) {
	p, ok := personas[seat]
	if !ok {
		p = persona{Name: seat, Style: "a careful, skeptical code reviewer",
			FallbackText: "Unable to complete assessment.", FallbackVote: "VOTE: REVISE"}
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: s.systemPrompt(p)},
			{Role: openai.ChatMessageRoleUser, Content: s.userMessage(req, p)},
		},
		MaxTokens: 1200,
	})
	if err != nil {
		log.Printf("reason: seat %s call failed, using fallback review: %v", seat, err)
		return s.fallbackReview(p), nil
	}
	if len(resp.Choices) == 0 {
		log.Printf("reason: seat %s got no choices, using fallback review", seat)
		return s.fallbackReview(p), nil
	}

	return ensureVoteLine(resp.Choices[0].Message.Content), nil
}

func (s *Service) systemPrompt(p persona) string {
	return fmt.Sprintf(
		"You are %s, one of seven members of the review council. You are %s. "+
			"Review the proposed change in character, briefly and concretely.",
		p.Name, p.Style)
}

func (s *Service) userMessage(req council.Request, p persona) string {
	diff := req.Diff
	if len(diff) > s.maxDiff {
		diff = diff[:s.maxDiff] + fmt.Sprintf("\n\n... [%d more characters truncated]", len(req.Diff)-s.maxDiff)
	}
	description := req.Description
	if description == "" {
		description = "(No description provided)"
	}

	return fmt.Sprintf(
		"## Proposal %s: %s\n\n### Description\n%s\n\n### Diff\n%s\n"+
			"Review this proposal as %s. Deliver your council review now.\n\n"+
			"You MUST end your review with exactly one of these on its own line:\n"+
			"VOTE: APPROVE\nVOTE: REJECT\nVOTE: REVISE",
		req.ProposalID, req.Title, description, diff, p.Name)
}

func (s *Service) fallbackReview(p persona) string {
	header := p.Name
	if p.Emoji != "" {
		header = p.Emoji + " " + p.Name
	}
	return fmt.Sprintf(
		"## %s — Council Review\n\n*Council member encountered a temporal disturbance (API error).*\n\n%s\n\n%s",
		header, p.FallbackText, p.FallbackVote)
}

// ensureVoteLine appends a REVISE vote when the model forgot to vote. The
// tally side stays strict; this is generation-side insurance only.
func ensureVoteLine(body string) string {
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "VOTE:") {
			return body
		}
	}
	return body + "\n\nVOTE: REVISE"
}

// Seats lists the personas with a defined seat, for config validation.
func Seats() []string {
	out := make([]string, 0, len(personas))
	for name := range personas {
		out = append(out, name)
	}
	return out
}
