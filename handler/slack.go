package handler

import (
	"context"

	"github.com/mochisuna/slack-application-vote/domain"
)

type SlackHandler interface {
	// BotUserID is the id of the account the bot acts as.
	BotUserID() string
	UserName(userID string) string
	GetChannel(ctx context.Context, channelID string) (domain.SlackChannel, error)
	// GetMessage refetches a message with the full reacting user lists.
	// A deleted message returns domain.ErrMessageNotFound.
	GetMessage(ctx context.Context, channelID, timestamp string) (domain.SlackMessage, error)
	AddReaction(ctx context.Context, channelID, timestamp, name string) error
	DeleteMessage(ctx context.Context, channelID, timestamp string) error
	PostMessage(ctx context.Context, channelID, text string) (domain.SlackMessage, error)
}

// EventSource delivers the platform's ready signal and reaction-add events.
type EventSource interface {
	Ready() <-chan struct{}
	Reactions() <-chan domain.ReactionEvent
}
