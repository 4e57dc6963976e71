package handler

import (
	"context"

	"github.com/mochisuna/slack-application-vote/domain"
)

const ParallelReconcile = 8

type ApplicationRepository interface {
	Create(ctx context.Context, app *domain.Application) error
	FindByID(ctx context.Context, id int64) (*domain.Application, error)
	// FindByVoteMessageID returns domain.ErrNotFound when no application is bound to key.
	FindByVoteMessageID(ctx context.Context, key string) (*domain.Application, error)
	FindByStatus(ctx context.Context, status domain.Status) ([]*domain.Application, error)
	Save(ctx context.Context, app *domain.Application) error
	// SaveVotes stores VoteMessageID and Votes only while the application is
	// awaiting; otherwise it returns domain.ErrAlreadyDecided.
	SaveVotes(ctx context.Context, app *domain.Application) error
	// Decide moves an awaiting application to a terminal status.
	Decide(ctx context.Context, id int64, status domain.Status) (*domain.Application, error)
}

type ApplicationPoster interface {
	PostApplicationMessage(ctx context.Context, app *domain.Application, isReminder bool) (domain.SlackMessage, error)
}
