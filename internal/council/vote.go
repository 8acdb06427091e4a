// Package council implements the consensus engine: a fixed-size panel of
// independent reviewers, a vote grammar over their messages, and a
// deterministic tally rule.
package council

import "strings"

type Vote string

const (
	VoteApprove Vote = "APPROVE"
	VoteReject  Vote = "REJECT"
	VoteRevise  Vote = "REVISE"
	// VoteAbstain is a message without a parseable terminal vote token, or
	// a reviewer that never posted. Never an error: free-form generated
	// text must not block the pipeline.
	VoteAbstain Vote = "ABSTAIN"
)

const voteMarker = "VOTE: "

// ParseVote extracts the vote from a message body: the last non-empty line
// must be exactly the marker followed by a category name. Anything else is
// an abstention.
func ParseVote(body string) Vote {
	lines := strings.Split(body, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		switch line {
		case voteMarker + string(VoteApprove):
			return VoteApprove
		case voteMarker + string(VoteReject):
			return VoteReject
		case voteMarker + string(VoteRevise):
			return VoteRevise
		default:
			return VoteAbstain
		}
	}
	return VoteAbstain
}
