package domain

type VoteType string

const (
	VoteApproved VoteType = "APPROVED"
	VoteDenied   VoteType = "DENIED"
)

type VoteTally struct {
	Entries   map[string]VoteType `json:"entries"`
	Approvals int                 `json:"approvals"`
	Denies    int                 `json:"denies"`
}

func NewVoteTally() VoteTally {
	return VoteTally{Entries: map[string]VoteType{}}
}

// Recount derives the aggregates from Entries.
func (t *VoteTally) Recount() {
	t.Approvals, t.Denies = 0, 0
	for _, v := range t.Entries {
		switch v {
		case VoteApproved:
			t.Approvals++
		case VoteDenied:
			t.Denies++
		}
	}
}

// ComputeTally builds a tally from a message's reaction snapshot. A user who
// reacted with both ballots counts as an approval. selfID, when non-empty, is
// never counted.
func ComputeTally(msg SlackMessage, selfID string) VoteTally {
	tally := NewVoteTally()
	ballots := make([]SlackReaction, 0, 2)
	for _, r := range msg.Reactions {
		if r.IsBallot() {
			ballots = append(ballots, r)
		}
	}
	for _, r := range ballots {
		if r.Name != DenyReaction {
			continue
		}
		for _, u := range r.Users {
			tally.Entries[u] = VoteDenied
		}
	}
	// approvals are applied last so they win over a denial from the same user
	for _, r := range ballots {
		if r.Name != ApproveReaction {
			continue
		}
		for _, u := range r.Users {
			tally.Entries[u] = VoteApproved
		}
	}
	if selfID != "" {
		delete(tally.Entries, selfID)
	}
	tally.Recount()
	return tally
}

// MergeTally overlays fresh onto previous. Voters missing from fresh keep
// their previous vote, so removing a reaction never retracts a vote.
func MergeTally(previous, fresh VoteTally) VoteTally {
	merged := NewVoteTally()
	for u, v := range previous.Entries {
		merged.Entries[u] = v
	}
	for u, v := range fresh.Entries {
		merged.Entries[u] = v
	}
	merged.Recount()
	return merged
}
