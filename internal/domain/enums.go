package domain

import "strings"

// Side is the direction of a trade proposal.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) String() string { return string(s) }
func (s Side) Valid() bool    { return s == SideBuy || s == SideSell }

func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return SideBuy, true
	case "sell":
		return SideSell, true
	default:
		return "", false
	}
}

// ProposalStatus is a closed set of lifecycle states. A proposal starts
// as pending and moves to exactly one of the terminal states.
type ProposalStatus string

const (
	StatusPending   ProposalStatus = "pending"
	StatusApproved  ProposalStatus = "approved"
	StatusRejected  ProposalStatus = "rejected"
	StatusCancelled ProposalStatus = "cancelled"
)

func (s ProposalStatus) String() string { return string(s) }

func (s ProposalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed.
func (s ProposalStatus) Terminal() bool { return s.Valid() && s != StatusPending }

func ParseStatus(s string) (ProposalStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, true
	case "approved":
		return StatusApproved, true
	case "rejected":
		return StatusRejected, true
	case "cancelled":
		return StatusCancelled, true
	default:
		return "", false
	}
}
