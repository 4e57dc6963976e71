package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mochisuna/slack-application-vote/domain"
	"github.com/mochisuna/slack-application-vote/handler"
)

// Outcome is what HandleReaction did with one event.
type Outcome int

const (
	Ignored Outcome = iota
	OrphanMessage
	Reconciled
)

func (o Outcome) String() string {
	switch o {
	case OrphanMessage:
		return "orphan_message"
	case Reconciled:
		return "reconciled"
	default:
		return "ignored"
	}
}

// postAttempts bounds replacement posts per reconciliation pass.
const postAttempts = 2

// VoteListener keeps application vote tallies in line with the reactions on
// their messages in the vote channel.
type VoteListener struct {
	slack       handler.SlackHandler
	repo        handler.ApplicationRepository
	poster      handler.ApplicationPoster
	locks       *ApplicationLocks
	voteChannel string
	workers     int
	logger      *slog.Logger
}

func NewVoteListener(
	sh handler.SlackHandler,
	repo handler.ApplicationRepository,
	poster handler.ApplicationPoster,
	locks *ApplicationLocks,
	voteChannel string,
	workers int,
	logger *slog.Logger,
) *VoteListener {
	if workers <= 0 {
		workers = handler.ParallelReconcile
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VoteListener{
		slack:       sh,
		repo:        repo,
		poster:      poster,
		locks:       locks,
		voteChannel: voteChannel,
		workers:     workers,
		logger:      logger,
	}
}

// Initialize checks that the vote channel exists. A failure here is fatal.
func (vl *VoteListener) Initialize(ctx context.Context) error {
	if vl.voteChannel == "" {
		return errors.New("vote channel not set")
	}
	ch, err := vl.slack.GetChannel(ctx, vl.voteChannel)
	if err != nil {
		return fmt.Errorf("vote channel not found: %w", err)
	}
	vl.logger.Info("using vote channel", "channel", ch.ID, "name", ch.Name)
	return nil
}

// EnsureBinding returns the live message bound to app. When the binding is
// empty, malformed, outside the vote channel or points at a deleted message,
// a new summary is posted and app is rebound and saved before returning.
func (vl *VoteListener) EnsureBinding(ctx context.Context, app *domain.Application) (domain.SlackMessage, bool, error) {
	channelID, ts, err := domain.ParseMessageKey(app.VoteMessageID)
	if err == nil && channelID == vl.voteChannel {
		msg, err := vl.slack.GetMessage(ctx, channelID, ts)
		switch {
		case err == nil:
			return msg, false, nil
		case !errors.Is(err, domain.ErrMessageNotFound) && !errors.Is(err, domain.ErrChannelNotFound):
			return domain.SlackMessage{}, false, fmt.Errorf("fetch vote message of application %d: %w", app.ID, err)
		}
	}

	vl.logger.Warn("application without a message, creating message",
		"application", app.ID, "vote_message_id", app.VoteMessageID)

	var msg domain.SlackMessage
	for attempt := 1; attempt <= postAttempts; attempt++ {
		msg, err = vl.poster.PostApplicationMessage(ctx, app, false)
		if err == nil {
			break
		}
		vl.logger.Warn("failed to post application message", "application", app.ID, "attempt", attempt, "error", err)
	}
	if err != nil {
		vl.logger.Error("giving up on application message", "application", app.ID, "error", err)
		return domain.SlackMessage{}, false, fmt.Errorf("repost application %d: %w", app.ID, err)
	}

	app.VoteMessageID = msg.Key()
	if err := vl.repo.SaveVotes(ctx, app); err != nil {
		return domain.SlackMessage{}, false, fmt.Errorf("rebind application %d: %w", app.ID, err)
	}
	return msg, true, nil
}

// Reconcile repairs the binding of one awaiting application and merges the
// current reactions into its stored votes.
func (vl *VoteListener) Reconcile(ctx context.Context, id int64) error {
	return vl.reconcile(ctx, id, nil)
}

// reconcile uses snapshot instead of refetching when the application is
// still bound to it.
func (vl *VoteListener) reconcile(ctx context.Context, id int64, snapshot *domain.SlackMessage) error {
	unlock := vl.locks.Lock(id)
	defer unlock()

	app, err := vl.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load application %d: %w", id, err)
	}
	if app.Status.IsTerminal() {
		return fmt.Errorf("application %d is %s: %w", id, app.Status, domain.ErrAlreadyDecided)
	}

	if snapshot != nil && snapshot.Key() == app.VoteMessageID && snapshot.ChannelID == vl.voteChannel {
		return vl.updateApplication(ctx, *snapshot, app)
	}
	msg, _, err := vl.EnsureBinding(ctx, app)
	if err != nil {
		return err
	}
	return vl.updateApplication(ctx, msg, app)
}

func (vl *VoteListener) updateApplication(ctx context.Context, msg domain.SlackMessage, app *domain.Application) error {
	if len(msg.Reactions) == 0 {
		vl.seedReactions(ctx, msg)
	}

	fresh := domain.ComputeTally(msg, vl.slack.BotUserID())
	app.Votes = domain.MergeTally(app.Votes, fresh)
	if err := vl.repo.SaveVotes(ctx, app); err != nil {
		return fmt.Errorf("save votes of application %d: %w", app.ID, err)
	}
	vl.logger.Debug("application votes updated",
		"application", app.ID, "approvals", app.Votes.Approvals, "denies", app.Votes.Denies)
	return nil
}

// seedReactions adds both ballots to a bare message. Failures don't matter:
// they are usually a race with another seeder or a transient permission issue.
func (vl *VoteListener) seedReactions(ctx context.Context, msg domain.SlackMessage) {
	for _, name := range []string{domain.ApproveReaction, domain.DenyReaction} {
		if err := vl.slack.AddReaction(ctx, msg.ChannelID, msg.Timestamp, name); err != nil {
			vl.logger.Debug("failed to seed reaction", "message", msg.Key(), "reaction", name, "error", err)
		}
	}
}

// HandleReaction processes one reaction-add event.
func (vl *VoteListener) HandleReaction(ctx context.Context, ev domain.ReactionEvent) (Outcome, error) {
	msg, err := vl.slack.GetMessage(ctx, ev.ChannelID, ev.Timestamp)
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) || errors.Is(err, domain.ErrChannelNotFound) {
			return Ignored, nil
		}
		return Ignored, err
	}
	if msg.ChannelID != vl.voteChannel {
		return Ignored, nil
	}
	if ev.UserID == vl.slack.BotUserID() {
		return Ignored, nil
	}

	app, err := vl.repo.FindByVoteMessageID(ctx, msg.Key())
	if errors.Is(err, domain.ErrNotFound) {
		vl.logger.Warn("found a message without an application, deleting",
			"message", msg.Key(), "user", msg.User, "text", msg.Text)
		if err := vl.slack.DeleteMessage(ctx, msg.ChannelID, msg.Timestamp); err != nil {
			vl.logger.Warn("failed to delete orphan message", "message", msg.Key(), "error", err)
		}
		return OrphanMessage, nil
	}
	if err != nil {
		return Ignored, fmt.Errorf("find application for %s: %w", msg.Key(), err)
	}

	if err := vl.reconcile(ctx, app.ID, &msg); err != nil {
		if errors.Is(err, domain.ErrAlreadyDecided) {
			return Ignored, nil
		}
		return Ignored, err
	}
	return Reconciled, nil
}

// Sweep reconciles every awaiting application. A failing application is
// logged and skipped. It returns how many were reconciled.
func (vl *VoteListener) Sweep(ctx context.Context) (int, error) {
	vl.logger.Info("loading application vote messages")

	apps, err := vl.repo.FindByStatus(ctx, domain.StatusAwaiting)
	if err != nil {
		return 0, fmt.Errorf("load awaiting applications: %w", err)
	}
	done := 0
	for _, app := range apps {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if err := vl.Reconcile(ctx, app.ID); err != nil {
			if errors.Is(err, domain.ErrAlreadyDecided) {
				continue
			}
			vl.logger.Warn("failed to reconcile application",
				"application", app.ID, "server", app.ServerName, "vote_message_id", app.VoteMessageID, "error", err)
			continue
		}
		done++
	}
	vl.logger.Info("application vote messages loaded", "total", len(apps), "reconciled", done)
	return done, nil
}
