package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Config all settings
type Config struct {
	Slack    `toml:"slack"`
	Database `toml:"database"`
	Log      `toml:"log"`
	Engine   `toml:"engine"`
}

type Slack struct {
	Token           string `toml:"token"`
	VoteChannel     string `toml:"vote_channel"`
	ApprovalChannel string `toml:"approval_channel"`
}

type Database struct {
	Path string `toml:"path"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Engine struct {
	Workers int `toml:"workers"`
}

var (
	ErrNoToken       = errors.New("slack.token is not set")
	ErrNoVoteChannel = errors.New("slack.vote_channel is not set")
	// decision notices in the vote channel would be deleted as orphans
	ErrSameChannels = errors.New("slack.approval_channel must differ from slack.vote_channel")
)

// New create config
func New(env string) (*Config, error) {
	return Load(fmt.Sprintf("_tools/%s/config.toml", env))
}

func Load(path string) (*Config, error) {
	config := &Config{
		Database: Database{Path: "appvote.db"},
		Log:      Log{Level: "info", Format: "text"},
	}
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Slack.Token == "" {
		return ErrNoToken
	}
	if c.Slack.VoteChannel == "" {
		return ErrNoVoteChannel
	}
	if c.Slack.ApprovalChannel == c.Slack.VoteChannel {
		return ErrSameChannels
	}
	return nil
}

// Logger builds the process logger from the [log] section.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
