package council

import (
	"fmt"

	"gitclaw/core/internal/board"
)

type Decision string

const (
	DecisionMerge Decision = "MERGE"
	DecisionClose Decision = "CLOSE"
	// DecisionStall leaves the proposal for manual resolution. A valid
	// terminal state, not an error.
	DecisionStall Decision = "STALL"
)

// TallyResult is a pure function of the message set at evaluation time;
// it is recorded for audit, never stored as a mutable entity.
type TallyResult struct {
	Approve  int
	Reject   int
	Revise   int
	Abstain  int
	Decision Decision
}

func (r TallyResult) String() string {
	return fmt.Sprintf("approve=%d reject=%d revise=%d abstain=%d decision=%s",
		r.Approve, r.Reject, r.Revise, r.Abstain, r.Decision)
}

// Tally counts votes over the full message set and applies the decision rule
// in fixed precedence order: approve quorum first, then reject quorum, else
// stall. Order-independent: any permutation of the same messages tallies the
// same. Seats that never posted count as abstentions.
func Tally(messages []board.Message, panelSize, quorum int) TallyResult {
	var result TallyResult
	for _, msg := range messages {
		switch ParseVote(msg.Body) {
		case VoteApprove:
			result.Approve++
		case VoteReject:
			result.Reject++
		case VoteRevise:
			result.Revise++
		default:
			result.Abstain++
		}
	}

	if silent := panelSize - len(messages); silent > 0 {
		result.Abstain += silent
	}

	switch {
	case result.Approve >= quorum:
		result.Decision = DecisionMerge
	case result.Reject >= quorum:
		result.Decision = DecisionClose
	default:
		result.Decision = DecisionStall
	}
	return result
}
