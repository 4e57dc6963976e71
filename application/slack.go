package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mochisuna/slack-application-vote/domain"
	"github.com/mochisuna/slack-application-vote/handler"
	"github.com/nlopes/slack"
)

// slack API error strings that mean the target is gone
const (
	errMessageNotFound = "message_not_found"
	errChannelNotFound = "channel_not_found"
	errNoItem          = "no_item_specified"
	errAlreadyReacted  = "already_reacted"
)

type slackHandler struct {
	Client *slack.Client
	Member map[string]string
	botID  string
}

func NewSlackHandler(ctx context.Context, token string) (handler.SlackHandler, error) {
	return newSlackHandler(ctx, slack.New(token))
}

func newSlackHandler(ctx context.Context, cli *slack.Client) (*slackHandler, error) {
	auth, err := cli.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth test: %w", err)
	}
	users, err := cli.GetUsersContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	mem := make(map[string]string)
	for _, u := range users {
		mem[u.ID] = u.Name
	}
	return &slackHandler{
		Client: cli,
		Member: mem,
		botID:  auth.UserID,
	}, nil
}

func (sh *slackHandler) BotUserID() string {
	return sh.botID
}

func (sh *slackHandler) UserName(userID string) string {
	if name, ok := sh.Member[userID]; ok {
		return name
	}
	return userID
}

func (sh *slackHandler) GetChannel(ctx context.Context, channelID string) (domain.SlackChannel, error) {
	ch, err := sh.Client.GetConversationInfoContext(ctx, channelID, false)
	if err != nil {
		return domain.SlackChannel{}, fmt.Errorf("get channel %s: %w", channelID, mapSlackError(err))
	}
	return domain.SlackChannel{ID: ch.ID, Name: ch.Name}, nil
}

// GetMessage reads the single message at timestamp, then the full reaction
// user lists, which history truncates.
func (sh *slackHandler) GetMessage(ctx context.Context, channelID, timestamp string) (domain.SlackMessage, error) {
	history, err := sh.Client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Latest:    timestamp,
		Oldest:    timestamp,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return domain.SlackMessage{}, fmt.Errorf("get message %s:%s: %w", channelID, timestamp, mapSlackError(err))
	}
	if len(history.Messages) == 0 || history.Messages[0].Timestamp != timestamp {
		return domain.SlackMessage{}, fmt.Errorf("get message %s:%s: %w", channelID, timestamp, domain.ErrMessageNotFound)
	}
	msg := history.Messages[0]

	reactions := msg.Reactions
	if len(reactions) > 0 {
		reactions, err = sh.Client.GetReactionsContext(ctx, slack.NewRefToMessage(channelID, timestamp), slack.GetReactionsParameters{Full: true})
		if err != nil {
			return domain.SlackMessage{}, fmt.Errorf("get reactions %s:%s: %w", channelID, timestamp, mapSlackError(err))
		}
	}
	return parseSlackMessage(channelID, msg.Msg, reactions), nil
}

func parseSlackMessage(channelID string, msg slack.Msg, reactions []slack.ItemReaction) domain.SlackMessage {
	reacs := make([]domain.SlackReaction, 0, len(reactions))
	for _, r := range reactions {
		reacs = append(reacs, domain.SlackReaction{
			Name:  r.Name,
			Count: r.Count,
			Users: append([]string(nil), r.Users...),
		})
	}
	return domain.SlackMessage{
		ChannelID: channelID,
		Timestamp: msg.Timestamp,
		User:      msg.User,
		Text:      msg.Text,
		Reactions: reacs,
	}
}

func (sh *slackHandler) AddReaction(ctx context.Context, channelID, timestamp, name string) error {
	err := sh.Client.AddReactionContext(ctx, name, slack.NewRefToMessage(channelID, timestamp))
	if err != nil && err.Error() != errAlreadyReacted {
		return fmt.Errorf("add reaction %s: %w", name, mapSlackError(err))
	}
	return nil
}

func (sh *slackHandler) DeleteMessage(ctx context.Context, channelID, timestamp string) error {
	if _, _, err := sh.Client.DeleteMessageContext(ctx, channelID, timestamp); err != nil {
		return fmt.Errorf("delete message %s:%s: %w", channelID, timestamp, mapSlackError(err))
	}
	return nil
}

func (sh *slackHandler) PostMessage(ctx context.Context, channelID, text string) (domain.SlackMessage, error) {
	opt := slack.MsgOptionText(text, false)
	ch, ts, err := sh.Client.PostMessageContext(ctx, channelID, opt, slack.MsgOptionEnableLinkUnfurl())
	if err != nil {
		return domain.SlackMessage{}, fmt.Errorf("post message: %w", mapSlackError(err))
	}
	return domain.SlackMessage{ChannelID: ch, Timestamp: ts, User: sh.botID, Text: text}, nil
}

func mapSlackError(err error) error {
	switch err.Error() {
	case errMessageNotFound, errNoItem:
		return fmt.Errorf("%w (%v)", domain.ErrMessageNotFound, err)
	case errChannelNotFound:
		return fmt.Errorf("%w (%v)", domain.ErrChannelNotFound, err)
	default:
		return err
	}
}

// rtmEvents adapts the RTM websocket into handler.EventSource.
type rtmEvents struct {
	rtm       *slack.RTM
	ready     chan struct{}
	reactions chan domain.ReactionEvent
	logger    *slog.Logger
}

func NewEventSource(sh handler.SlackHandler, logger *slog.Logger) (handler.EventSource, func(context.Context), error) {
	impl, ok := sh.(*slackHandler)
	if !ok {
		return nil, nil, fmt.Errorf("event source needs a slack client handler, got %T", sh)
	}
	ev := &rtmEvents{
		rtm:       impl.Client.NewRTM(),
		ready:     make(chan struct{}, 1),
		reactions: make(chan domain.ReactionEvent, 100),
		logger:    logger,
	}
	return ev, ev.start, nil
}

func (e *rtmEvents) Ready() <-chan struct{} {
	return e.ready
}

func (e *rtmEvents) Reactions() <-chan domain.ReactionEvent {
	return e.reactions
}

func (e *rtmEvents) start(ctx context.Context) {
	go e.rtm.ManageConnection()
	e.pump(ctx, e.rtm.IncomingEvents)
	// after a fatal auth error ManageConnection has already torn the socket down
	if ctx.Err() != nil {
		e.rtm.Disconnect()
	}
}

// pump translates RTM events until ctx is done or the connection is lost for
// good. Closing Reactions tells the consumer the source is gone.
func (e *rtmEvents) pump(ctx context.Context, incoming <-chan slack.RTMEvent) {
	defer close(e.reactions)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-incoming:
			if !ok {
				e.logger.Error("slack connection closed")
				return
			}
			switch ev := msg.Data.(type) {
			case *slack.ConnectedEvent:
				e.logger.Info("connected to slack", "connections", ev.ConnectionCount)
				// one pending signal is enough; a sweep covers all drift
				select {
				case e.ready <- struct{}{}:
				default:
				}
			case *slack.ReactionAddedEvent:
				if ev.Item.Type != "message" {
					continue
				}
				select {
				case e.reactions <- domain.ReactionEvent{
					ChannelID: ev.Item.Channel,
					Timestamp: ev.Item.Timestamp,
					Reaction:  ev.Reaction,
					UserID:    ev.User,
				}:
				case <-ctx.Done():
					return
				}
			case *slack.InvalidAuthEvent:
				e.logger.Error("slack rejected credentials, connection closed")
				return
			case *slack.RTMError:
				e.logger.Warn("slack rtm error", "error", ev.Error())
			}
		}
	}
}
