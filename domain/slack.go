package domain

import (
	"errors"
	"strings"
)

// Slack reaction names used as ballots.
const (
	ApproveReaction = "white_check_mark"
	DenyReaction    = "x"
)

var (
	ErrInvalidMessageKey = errors.New("invalid vote message key")
	ErrMessageNotFound   = errors.New("message not found")
	ErrChannelNotFound   = errors.New("channel not found")
)

type SlackChannel struct {
	ID   string
	Name string
}

type SlackMessage struct {
	ChannelID string
	Timestamp string
	User      string
	Text      string
	Reactions []SlackReaction
}

// Key returns the composite "<channel>:<ts>" reference stored on an application.
func (m SlackMessage) Key() string {
	return MessageKey(m.ChannelID, m.Timestamp)
}

type SlackReaction struct {
	Name  string
	Count int
	Users []string
}

func (r *SlackReaction) IsBallot() bool {
	switch r.Name {
	case ApproveReaction, DenyReaction:
		return true
	default:
		return false
	}
}

// ReactionEvent is a reaction-add notification from the platform.
type ReactionEvent struct {
	ChannelID string
	Timestamp string
	Reaction  string
	UserID    string
}

func (e ReactionEvent) Key() string {
	return MessageKey(e.ChannelID, e.Timestamp)
}

func MessageKey(channelID, timestamp string) string {
	return channelID + ":" + timestamp
}

// ParseMessageKey splits a composite key. Both halves are required.
func ParseMessageKey(key string) (channelID, timestamp string, err error) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidMessageKey
	}
	return parts[0], parts[1], nil
}
