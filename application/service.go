package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mochisuna/slack-application-vote/domain"
	"github.com/mochisuna/slack-application-vote/handler"
)

// ApplicationService posts application summaries and records the
// moderator decision. Voting never changes Status; only ApproveOrDeny does.
type ApplicationService struct {
	slack           handler.SlackHandler
	repo            handler.ApplicationRepository
	locks           *ApplicationLocks
	voteChannel     string
	approvalChannel string
	logger          *slog.Logger
}

func NewApplicationService(
	sh handler.SlackHandler,
	repo handler.ApplicationRepository,
	locks *ApplicationLocks,
	voteChannel, approvalChannel string,
	logger *slog.Logger,
) *ApplicationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ApplicationService{
		slack:           sh,
		repo:            repo,
		locks:           locks,
		voteChannel:     voteChannel,
		approvalChannel: approvalChannel,
		logger:          logger,
	}
}

func (s *ApplicationService) PostApplicationMessage(ctx context.Context, app *domain.Application, isReminder bool) (domain.SlackMessage, error) {
	return s.slack.PostMessage(ctx, s.voteChannel, applicationSummary(app, isReminder))
}

func applicationSummary(app *domain.Application, isReminder bool) string {
	var b strings.Builder
	if isReminder {
		b.WriteString("*Reminder:* ")
	}
	fmt.Fprintf(&b, "*Application #%d: %s*\n", app.ID, app.ServerName)
	if app.ApplicantID != "" {
		fmt.Fprintf(&b, "Applicant: <@%s>\n", app.ApplicantID)
	} else if app.ApplicantName != "" {
		fmt.Fprintf(&b, "Applicant: %s\n", app.ApplicantName)
	}
	if app.InviteURL != "" {
		fmt.Fprintf(&b, "Invite: %s\n", app.InviteURL)
	}
	if app.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", app.Reason)
	}
	fmt.Fprintf(&b, "Vote with :%s: or :%s:", domain.ApproveReaction, domain.DenyReaction)
	return b.String()
}

// ApproveOrDeny moves an awaiting application to a terminal status.
func (s *ApplicationService) ApproveOrDeny(ctx context.Context, id int64, status domain.Status) (*domain.Application, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("approve application %d: invalid status %q", id, status)
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	// the store only moves awaiting rows, so this is safe against other processes
	app, err := s.repo.Decide(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("approve application %d: %w", id, err)
	}
	s.logger.Info("application decided", "application", app.ID, "status", app.Status)

	if s.approvalChannel != "" {
		text := fmt.Sprintf("Application #%d (%s) was %s.", app.ID, app.ServerName, strings.ToLower(string(status)))
		if _, err := s.slack.PostMessage(ctx, s.approvalChannel, text); err != nil {
			s.logger.Warn("failed to post decision notice", "application", app.ID, "error", err)
		}
	}
	return app, nil
}

type Voter struct {
	UserID string
	Name   string
	Vote   domain.VoteType
}

type VoteSummary struct {
	Application *domain.Application
	Voters      []Voter
	Approvals   int
	Denies      int
}

// View lists the recorded voters of an application by display name.
func (s *ApplicationService) View(ctx context.Context, id int64) (*VoteSummary, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("view application %d: %w", id, err)
	}
	tally := app.Votes
	tally.Recount()

	voters := make([]Voter, 0, len(tally.Entries))
	for u, v := range tally.Entries {
		voters = append(voters, Voter{UserID: u, Name: s.slack.UserName(u), Vote: v})
	}
	sort.Slice(voters, func(i, j int) bool {
		if voters[i].Name != voters[j].Name {
			return voters[i].Name < voters[j].Name
		}
		return voters[i].UserID < voters[j].UserID
	})
	return &VoteSummary{
		Application: app,
		Voters:      voters,
		Approvals:   tally.Approvals,
		Denies:      tally.Denies,
	}, nil
}
