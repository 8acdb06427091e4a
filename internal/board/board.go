// Package board is the message board: one ordered, append-only comment
// thread per proposal. Messages are opaque text; the council's vote tokens
// live in the message bodies, not in the board.
package board

import (
	"context"
	"time"
)

type Message struct {
	Author   string    `json:"author"`
	Body     string    `json:"body"`
	PostedAt time.Time `json:"posted_at"`
}

// Board appends are write-once: nothing ever edits or deletes a message.
type Board interface {
	Append(ctx context.Context, threadID, author, body string) error
	List(ctx context.Context, threadID string) ([]Message, error)
}
