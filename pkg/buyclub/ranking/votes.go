package ranking

import (
	"errors"
	"strings"
	"time"

	"github.com/buyclub/buyclub/pkg/buyclub/models"
)

// ErrInvalidVote is returned for anything other than up, down or clear
var ErrInvalidVote = errors.New("invalid vote value")

// Vote is a member's stance on a product
type Vote string

const (
	VoteUp    Vote = "up"
	VoteDown  Vote = "down"
	VoteClear Vote = "clear"
)

// ParseVote validates a raw vote value
func ParseVote(raw string) (Vote, error) {
	switch v := Vote(strings.ToLower(strings.TrimSpace(raw))); v {
	case VoteUp, VoteDown, VoteClear:
		return v, nil
	default:
		return "", ErrInvalidVote
	}
}

// ApplyVote moves userID between the voter sets of p and stamps the
// activity fields. A user is never left in both sets.
func ApplyVote(p *models.Product, userID uint, vote Vote, now time.Time) {
	up := without(p.Upvoters, userID)
	down := without(p.Downvoters, userID)

	switch vote {
	case VoteUp:
		up = append(up, userID)
	case VoteDown:
		down = append(down, userID)
	}

	p.Upvoters = up
	p.Downvoters = down
	p.LastActivityAt = now
	p.UpdatedAt = now
	p.LastUpdatedByID = userID
}

// VoteOf returns VoteUp, VoteDown or "" for a user with no vote
func VoteOf(p models.Product, userID uint) Vote {
	if userID == 0 {
		return ""
	}
	if contains(p.Upvoters, userID) {
		return VoteUp
	}
	if contains(p.Downvoters, userID) {
		return VoteDown
	}
	return ""
}

func without(ids []uint, id uint) []uint {
	out := make([]uint, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func contains(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
