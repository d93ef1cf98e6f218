package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buyclub/buyclub/pkg/buyclub/models"
)

func TestParseVote(t *testing.T) {
	for raw, want := range map[string]Vote{"up": VoteUp, " DOWN ": VoteDown, "clear": VoteClear} {
		v, err := ParseVote(raw)
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	for _, raw := range []string{"", "sideways", "upvote"} {
		_, err := ParseVote(raw)
		assert.ErrorIs(t, err, ErrInvalidVote)
	}
}

func TestApplyVoteTransitions(t *testing.T) {
	p := &models.Product{Upvoters: []uint{2}, Downvoters: []uint{3}}

	ApplyVote(p, 1, VoteUp, testNow)
	assert.ElementsMatch(t, []uint{1, 2}, p.Upvoters)
	assert.Equal(t, VoteUp, VoteOf(*p, 1))
	assert.Equal(t, uint(1), p.LastUpdatedByID)
	assert.Equal(t, testNow, p.LastActivityAt)
	assert.Equal(t, testNow, p.UpdatedAt)

	ApplyVote(p, 1, VoteDown, testNow)
	assert.ElementsMatch(t, []uint{2}, p.Upvoters)
	assert.ElementsMatch(t, []uint{3, 1}, p.Downvoters)
	assert.Equal(t, VoteDown, VoteOf(*p, 1))

	ApplyVote(p, 1, VoteClear, testNow)
	assert.ElementsMatch(t, []uint{2}, p.Upvoters)
	assert.ElementsMatch(t, []uint{3}, p.Downvoters)
	assert.Equal(t, Vote(""), VoteOf(*p, 1))
}

func TestApplyVoteIsIdempotentPerSide(t *testing.T) {
	p := &models.Product{}
	ApplyVote(p, 1, VoteUp, testNow)
	ApplyVote(p, 1, VoteUp, testNow)
	assert.Equal(t, []uint{1}, []uint(p.Upvoters))
}

func TestUpThenDownMovesScoreByTwo(t *testing.T) {
	g := &models.Group{MaxActiveProducts: 5, Products: []models.Product{
		{ID: "p", Name: "Milk", Upvoters: []uint{5}, LastActivityAt: testNow},
	}}
	Recalculate(g, testNow)
	baseline := g.Products[0].Score

	ApplyVote(&g.Products[0], 1, VoteUp, testNow)
	Recalculate(g, testNow)
	afterUp := g.Products[0].Score

	ApplyVote(&g.Products[0], 1, VoteDown, testNow)
	Recalculate(g, testNow)

	p := g.Products[0]
	assert.NotContains(t, p.Upvoters, uint(1))
	assert.Contains(t, p.Downvoters, uint(1))
	assert.Equal(t, baseline+1, afterUp)
	assert.Equal(t, afterUp-2, p.Score)
}

func TestVoteExclusivityOverSequences(t *testing.T) {
	votes := []Vote{VoteUp, VoteDown, VoteClear}
	// Every sequence of three votes from two users
	for a := range votes {
		for b := range votes {
			for c := range votes {
				p := &models.Product{}
				for i, v := range []Vote{votes[a], votes[b], votes[c]} {
					ApplyVote(p, uint(i%2+1), v, testNow)
				}
				for _, user := range []uint{1, 2} {
					both := contains(p.Upvoters, user) && contains(p.Downvoters, user)
					assert.False(t, both, "user %d in both voter sets", user)
				}
			}
		}
	}
}

func TestVoteOfAnonymousViewer(t *testing.T) {
	p := models.Product{Upvoters: []uint{0}}
	assert.Equal(t, Vote(""), VoteOf(p, 0))
}
