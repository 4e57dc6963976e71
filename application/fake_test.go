package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mochisuna/slack-application-vote/domain"
	"github.com/mochisuna/slack-application-vote/store"
)

const (
	testBot         = "UBOT"
	testVoteChannel = "100"
)

// fakeSlack is an in-memory workspace. Posted messages get increasing
// timestamps starting at 201.
type fakeSlack struct {
	mu         sync.Mutex
	channels   map[string]string
	messages   map[string]*domain.SlackMessage
	nextTS     int
	postErrs   int
	getErr     error
	reactErr   error
	posted     []domain.SlackMessage
	deleted    []string
	reactCalls int
	users      map[string]string
	getCalls   int
	// onGet runs before every GetMessage, outside the lock
	onGet func()
}

func newFakeSlack() *fakeSlack {
	return &fakeSlack{
		channels: map[string]string{testVoteChannel: "applications", "999": "general"},
		messages: map[string]*domain.SlackMessage{},
		nextTS:   201,
		users:    map[string]string{"A": "alice", "B": "bob"},
	}
}

func (f *fakeSlack) BotUserID() string { return testBot }

func (f *fakeSlack) UserName(userID string) string {
	if n, ok := f.users[userID]; ok {
		return n
	}
	return userID
}

func (f *fakeSlack) GetChannel(_ context.Context, channelID string) (domain.SlackChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.channels[channelID]
	if !ok {
		return domain.SlackChannel{}, domain.ErrChannelNotFound
	}
	return domain.SlackChannel{ID: channelID, Name: name}, nil
}

func (f *fakeSlack) GetMessage(_ context.Context, channelID, timestamp string) (domain.SlackMessage, error) {
	if f.onGet != nil {
		f.onGet()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return domain.SlackMessage{}, f.getErr
	}
	msg, ok := f.messages[domain.MessageKey(channelID, timestamp)]
	if !ok {
		return domain.SlackMessage{}, fmt.Errorf("get message: %w", domain.ErrMessageNotFound)
	}
	return copyMessage(*msg), nil
}

func (f *fakeSlack) AddReaction(_ context.Context, channelID, timestamp, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactCalls++
	if f.reactErr != nil {
		return f.reactErr
	}
	f.react(domain.MessageKey(channelID, timestamp), name, testBot)
	return nil
}

func (f *fakeSlack) DeleteMessage(_ context.Context, channelID, timestamp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := domain.MessageKey(channelID, timestamp)
	f.deleted = append(f.deleted, key)
	delete(f.messages, key)
	return nil
}

func (f *fakeSlack) PostMessage(_ context.Context, channelID, text string) (domain.SlackMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErrs > 0 {
		f.postErrs--
		return domain.SlackMessage{}, fmt.Errorf("post message: rate_limited")
	}
	msg := domain.SlackMessage{ChannelID: channelID, Timestamp: fmt.Sprint(f.nextTS), User: testBot, Text: text}
	f.nextTS++
	f.messages[msg.Key()] = &msg
	f.posted = append(f.posted, msg)
	return copyMessage(msg), nil
}

// addMessage puts a message at channel:ts, as if posted by someone else.
func (f *fakeSlack) addMessage(channelID, ts string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[domain.MessageKey(channelID, ts)] = &domain.SlackMessage{ChannelID: channelID, Timestamp: ts, User: "U9"}
}

// userReact records a reaction the way the platform would before emitting the event.
func (f *fakeSlack) userReact(key, name, user string) domain.ReactionEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.react(key, name, user)
	ch, ts, _ := domain.ParseMessageKey(key)
	return domain.ReactionEvent{ChannelID: ch, Timestamp: ts, Reaction: name, UserID: user}
}

func (f *fakeSlack) unreact(key, name, user string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := f.messages[key]
	for i := range msg.Reactions {
		r := &msg.Reactions[i]
		if r.Name != name {
			continue
		}
		for j, u := range r.Users {
			if u == user {
				r.Users = append(r.Users[:j], r.Users[j+1:]...)
				r.Count--
				break
			}
		}
	}
}

func (f *fakeSlack) react(key, name, user string) {
	msg, ok := f.messages[key]
	if !ok {
		return
	}
	for i := range msg.Reactions {
		if msg.Reactions[i].Name == name {
			for _, u := range msg.Reactions[i].Users {
				if u == user {
					return
				}
			}
			msg.Reactions[i].Users = append(msg.Reactions[i].Users, user)
			msg.Reactions[i].Count++
			return
		}
	}
	msg.Reactions = append(msg.Reactions, domain.SlackReaction{Name: name, Count: 1, Users: []string{user}})
}

func (f *fakeSlack) deleteMessage(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, key)
}

func (f *fakeSlack) postedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.posted)
}

func copyMessage(m domain.SlackMessage) domain.SlackMessage {
	out := m
	out.Reactions = make([]domain.SlackReaction, len(m.Reactions))
	for i, r := range m.Reactions {
		r.Users = append([]string(nil), r.Users...)
		out.Reactions[i] = r
	}
	return out
}

type fixture struct {
	dbPath   string
	slack    *fakeSlack
	store    *store.Store
	service  *ApplicationService
	listener *VoteListener
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	fs := newFakeSlack()
	locks := NewApplicationLocks()
	svc := NewApplicationService(fs, s, locks, testVoteChannel, "", quietLogger())
	vl := NewVoteListener(fs, s, svc, locks, testVoteChannel, 4, quietLogger())
	return &fixture{dbPath: path, slack: fs, store: s, service: svc, listener: vl}
}

// createApplication stores an awaiting application bound to key.
func (fx *fixture) createApplication(t *testing.T, key string) *domain.Application {
	t.Helper()
	app := &domain.Application{ApplicantID: "U1", ServerName: "Hotline", VoteMessageID: key}
	require.NoError(t, fx.store.Create(context.Background(), app))
	return app
}

func (fx *fixture) load(t *testing.T, id int64) *domain.Application {
	t.Helper()
	app, err := fx.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return app
}
