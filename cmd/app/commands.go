package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	app "github.com/mochisuna/slack-application-vote/application"
	"github.com/mochisuna/slack-application-vote/config"
	"github.com/mochisuna/slack-application-vote/domain"
	"github.com/mochisuna/slack-application-vote/handler"
	"github.com/mochisuna/slack-application-vote/store"
)

type rootOptions struct {
	Env string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "appvote",
		Short:         "Reconcile application votes cast as Slack reactions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.Env, "env", "e", "local", "environment")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newAppCommand(opts))
	return cmd
}

// runtime is everything a command needs, wired from config.
type runtime struct {
	conf     *config.Config
	logger   *slog.Logger
	store    *store.Store
	slack    handler.SlackHandler
	service  *app.ApplicationService
	listener *app.VoteListener
}

func newRuntime(ctx context.Context, opts *rootOptions) (*runtime, error) {
	conf, err := loadConfig(opts.Env)
	if err != nil {
		return nil, err
	}
	logger := conf.Logger()
	slog.SetDefault(logger)

	st, err := store.Open(conf.Database.Path)
	if err != nil {
		return nil, err
	}
	sh, err := app.NewSlackHandler(ctx, conf.Slack.Token)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("error on new SlackHandler: %w", err)
	}
	locks := app.NewApplicationLocks()
	svc := app.NewApplicationService(sh, st, locks, conf.Slack.VoteChannel, conf.Slack.ApprovalChannel, logger)
	vl := app.NewVoteListener(sh, st, svc, locks, conf.Slack.VoteChannel, conf.Engine.Workers, logger)
	return &runtime{conf: conf, logger: logger, store: st, slack: sh, service: svc, listener: vl}, nil
}

func (r *runtime) Close() error {
	return r.store.Close()
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Sweep on connect, then reconcile votes as reactions arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.listener.Initialize(ctx); err != nil {
				return err
			}
			events, start, err := app.NewEventSource(rt.slack, rt.logger)
			if err != nil {
				return err
			}
			go start(ctx)

			err = rt.listener.Run(ctx, events)
			if errors.Is(err, context.Canceled) {
				rt.logger.Info("shutting down")
				return nil
			}
			return err
		},
	}
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile every awaiting application once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.listener.Initialize(ctx); err != nil {
				return err
			}
			n, err := rt.listener.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reconciled %d applications\n", n)
			return nil
		},
	}
}

func newAppCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "app",
		Short: "Inspect or decide applications",
	}
	cmd.AddCommand(newDecideCommand(opts, "approve", domain.StatusApproved))
	cmd.AddCommand(newDecideCommand(opts, "deny", domain.StatusDenied))
	cmd.AddCommand(newViewCommand(opts))
	return cmd
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid application id %q", arg)
	}
	return id, nil
}

func newDecideCommand(opts *rootOptions, verb string, status domain.Status) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: fmt.Sprintf("Mark an application %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			application, err := rt.service.ApproveOrDeny(cmd.Context(), id, status)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "application %d: %s\n", application.ID, application.Status)
			return nil
		},
	}
}

func newViewCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "view <id>",
		Short: "Show the recorded votes of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			rt, err := newRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			summary, err := rt.service.View(cmd.Context(), id)
			if err != nil {
				return err
			}
			printSummary(cmd, summary)
			return nil
		},
	}
}

func printSummary(cmd *cobra.Command, s *app.VoteSummary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Vote Results for: %s (#%d, %s)\n", s.Application.ServerName, s.Application.ID, s.Application.Status)
	fmt.Fprintf(out, "Current Results: %d - %d\n", s.Approvals, s.Denies)
	for _, v := range s.Voters {
		mark := ":" + domain.ApproveReaction + ":"
		if v.Vote == domain.VoteDenied {
			mark = ":" + domain.DenyReaction + ":"
		}
		fmt.Fprintf(out, "  %s %s\n", mark, v.Name)
	}
}
