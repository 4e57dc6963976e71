package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const botID = "UBOT"

func ballotMessage(approvers, deniers []string) SlackMessage {
	return SlackMessage{
		ChannelID: "100",
		Timestamp: "200",
		Reactions: []SlackReaction{
			{Name: ApproveReaction, Count: len(approvers), Users: approvers},
			{Name: DenyReaction, Count: len(deniers), Users: deniers},
		},
	}
}

func TestComputeTally_CountsEachBallot(t *testing.T) {
	msg := ballotMessage([]string{"A", botID}, []string{"B", botID})

	tally := ComputeTally(msg, botID)

	assert.Equal(t, map[string]VoteType{"A": VoteApproved, "B": VoteDenied}, tally.Entries)
	assert.Equal(t, 1, tally.Approvals)
	assert.Equal(t, 1, tally.Denies)
}

func TestComputeTally_ApproveWinsOverDeny(t *testing.T) {
	msg := ballotMessage([]string{"A"}, []string{"A", "B"})

	tally := ComputeTally(msg, botID)

	assert.Equal(t, VoteApproved, tally.Entries["A"])
	assert.Equal(t, VoteDenied, tally.Entries["B"])
	assert.Equal(t, 1, tally.Approvals)
	assert.Equal(t, 1, tally.Denies)
}

func TestComputeTally_IgnoresOtherReactions(t *testing.T) {
	msg := ballotMessage(nil, nil)
	msg.Reactions = append(msg.Reactions, SlackReaction{Name: "thumbsup", Count: 1, Users: []string{"C"}})

	tally := ComputeTally(msg, botID)

	assert.Empty(t, tally.Entries)
	assert.Zero(t, tally.Approvals)
	assert.Zero(t, tally.Denies)
}

func TestComputeTally_NeverCountsSelf(t *testing.T) {
	cases := []SlackMessage{
		ballotMessage([]string{botID}, nil),
		ballotMessage(nil, []string{botID}),
		ballotMessage([]string{botID}, []string{botID}),
		ballotMessage([]string{"A", botID}, []string{botID, "B"}),
		{},
	}
	for _, msg := range cases {
		tally := ComputeTally(msg, botID)
		assert.NotContains(t, tally.Entries, botID)
		assert.Equal(t, len(tally.Entries), tally.Approvals+tally.Denies)
	}
}

func TestComputeTally_WithoutExclusionCountsSelf(t *testing.T) {
	tally := ComputeTally(ballotMessage([]string{botID}, nil), "")
	assert.Equal(t, VoteApproved, tally.Entries[botID])
}

func TestComputeTally_Idempotent(t *testing.T) {
	msg := ballotMessage([]string{"A", "C"}, []string{"B"})
	prev := VoteTally{Entries: map[string]VoteType{"D": VoteDenied}}

	first := MergeTally(prev, ComputeTally(msg, botID))
	second := MergeTally(first, ComputeTally(msg, botID))

	assert.Equal(t, first, second)
	assert.Equal(t, 2, second.Approvals)
	assert.Equal(t, 2, second.Denies)
}

func TestMergeTally_RetainsHistory(t *testing.T) {
	prev := VoteTally{Entries: map[string]VoteType{"A": VoteApproved}, Approvals: 1}
	fresh := VoteTally{Entries: map[string]VoteType{"B": VoteDenied}, Denies: 1}

	merged := MergeTally(prev, fresh)

	assert.Equal(t, map[string]VoteType{"A": VoteApproved, "B": VoteDenied}, merged.Entries)
	assert.Equal(t, 1, merged.Approvals)
	assert.Equal(t, 1, merged.Denies)
}

func TestMergeTally_FreshWins(t *testing.T) {
	prev := VoteTally{Entries: map[string]VoteType{"A": VoteApproved, "B": VoteApproved}}
	fresh := VoteTally{Entries: map[string]VoteType{"A": VoteDenied}}

	merged := MergeTally(prev, fresh)

	assert.Equal(t, VoteDenied, merged.Entries["A"])
	assert.Equal(t, VoteApproved, merged.Entries["B"])
	assert.Equal(t, 1, merged.Approvals)
	assert.Equal(t, 1, merged.Denies)
}

func TestMergeTally_RecomputesStaleAggregates(t *testing.T) {
	prev := VoteTally{Entries: map[string]VoteType{"A": VoteApproved, "B": VoteDenied}, Approvals: 7, Denies: 0}

	merged := MergeTally(prev, NewVoteTally())

	assert.Equal(t, 1, merged.Approvals)
	assert.Equal(t, 1, merged.Denies)
}

func TestMergeTally_KeySuperset(t *testing.T) {
	prev := VoteTally{Entries: map[string]VoteType{"A": VoteApproved, "B": VoteDenied, "C": VoteApproved}}
	fresh := VoteTally{Entries: map[string]VoteType{"C": VoteDenied, "D": VoteApproved}}

	merged := MergeTally(prev, fresh)

	for u := range prev.Entries {
		require.Contains(t, merged.Entries, u)
	}
	for u := range fresh.Entries {
		require.Contains(t, merged.Entries, u)
	}
	assert.Equal(t, VoteApproved, merged.Entries["A"])
	assert.Equal(t, VoteDenied, merged.Entries["B"])
}

func TestMergeTally_DoesNotAliasInputs(t *testing.T) {
	prev := VoteTally{Entries: map[string]VoteType{"A": VoteApproved}}
	merged := MergeTally(prev, VoteTally{Entries: map[string]VoteType{"B": VoteDenied}})
	merged.Entries["Z"] = VoteDenied

	assert.NotContains(t, prev.Entries, "Z")
}

func TestMergeTally_NilMaps(t *testing.T) {
	merged := MergeTally(VoteTally{}, VoteTally{})
	require.NotNil(t, merged.Entries)
	assert.Empty(t, merged.Entries)
}
