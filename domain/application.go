package domain

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("application not found")
	ErrAlreadyDecided = errors.New("application already decided")
)

type Status string

const (
	StatusAwaiting Status = "AWAITING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
)

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied
}

func (s Status) Valid() bool {
	return s == StatusAwaiting || s.IsTerminal()
}

// Application is one membership request. Only VoteMessageID, Votes and
// Status are touched by reconciliation; the rest is intake payload.
type Application struct {
	ID            int64
	ApplicantID   string
	ApplicantName string
	ServerName    string
	InviteURL     string
	Reason        string
	VoteMessageID string
	Votes         VoteTally
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
