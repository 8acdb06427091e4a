package council

import (
	"context"
	"log"
	"time"

	"gitclaw/core/internal/board"
)

// Request is the only thing a reviewer sees: the proposal's diff, never the
// other reviewers' messages.
type Request struct {
	ProposalID  string
	Title       string
	Description string
	Diff        string
}

// ReviewFunc is the opaque reasoning service: given a seat name and a
// request it returns the review text. Implementations are expected to
// degrade to a fallback review rather than fail, but a returned error is
// tolerated: the seat simply stays silent and tallies as an abstention.
type ReviewFunc func(ctx context.Context, seat string, req Request) (string, error)

// Panel dispatches one independent reviewer per seat. Reviewers share no
// state; each appends exactly one message to the proposal's thread.
type Panel struct {
	seats   []string
	review  ReviewFunc
	board   board.Board
	timeout time.Duration
}

func NewPanel(seats []string, review ReviewFunc, b board.Board, timeout time.Duration) *Panel {
	return &Panel{seats: seats, review: review, board: b, timeout: timeout}
}

// Size reports the number of seats.
func (p *Panel) Size() int {
	return len(p.seats)
}

// Dispatch fires all seats in parallel and returns once every seat has
// posted or the review timeout elapsed, whichever comes first. Seats still
// working past the timeout are left to finish on their own; whatever they
// post late is simply not waited for.
func (p *Panel) Dispatch(ctx context.Context, req Request) {
	posted := make(chan string, len(p.seats))

	for _, seat := range p.seats {
		go func(seat string) {
			body, err := p.review(ctx, seat, req)
			if err != nil {
				log.Printf("council: seat %s review failed, recording silence: %v", seat, err)
				return
			}
			if err := p.board.Append(ctx, req.ProposalID, seat, body); err != nil {
				log.Printf("council: seat %s could not post: %v", seat, err)
				return
			}
			posted <- seat
		}(seat)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	for count := 0; count < len(p.seats); {
		select {
		case seat := <-posted:
			count++
			log.Printf("council: seat %s posted (%d/%d)", seat, count, len(p.seats))
		case <-timer.C:
			log.Printf("council: review timeout after %s with %d/%d posted; silence becomes abstention",
				p.timeout, count, len(p.seats))
			return
		case <-ctx.Done():
			log.Printf("council: dispatch cancelled with %d/%d posted", count, len(p.seats))
			return
		}
	}
}
