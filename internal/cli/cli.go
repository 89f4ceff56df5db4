// Package cli holds the inboxd command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"task-inbox-go/internal/app"
	"task-inbox-go/internal/scheduler"
)

// Actions are the operations the commands dispatch to.
type Actions struct {
	Serve      func() error
	Sync       func(ctx context.Context, projectID uint) (scheduler.Report, error)
	Migrate    func() error
	GmailOAuth func() (*oauth2.Config, error)
}

// DefaultActions runs against the configured process.
func DefaultActions() Actions {
	return Actions{Serve: app.Run, Sync: app.SyncOnce, Migrate: app.Migrate, GmailOAuth: app.GmailOAuthConfig}
}

// NewRootCommand builds the inboxd command tree. serve is the default.
func NewRootCommand(actions Actions) *cobra.Command {
	root := &cobra.Command{
		Use:   "inboxd",
		Short: "Turns project mailboxes into tasks",
		Long: `inboxd syncs project mailboxes over IMAP, applies inbox rules and
creates or updates tasks from incoming mail.

Examples:
  inboxd                      # run the service (same as "inboxd serve")
  inboxd sync                 # sync every due account once
  inboxd sync --project 42    # force a sync of one project
  inboxd migrate              # create or update the database schema
  inboxd gmail-token          # authorize a Gmail account`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return actions.Serve()
		},
	}

	root.AddCommand(newServeCmd(actions), newSyncCmd(actions), newMigrateCmd(actions), newGmailTokenCmd(actions))
	return root
}

func newServeCmd(actions Actions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sync scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return actions.Serve()
		},
	}
}

func newSyncCmd(actions Actions) *cobra.Command {
	var projectID uint

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronous sync and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := actions.Sync(ctx, projectID)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().UintVar(&projectID, "project", 0, "force a sync of this project only")
	return cmd
}

func newMigrateCmd(actions Actions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := actions.Migrate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func printReport(w io.Writer, report scheduler.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// Execute runs the command tree and exits non-zero on failure
func Execute() {
	if err := NewRootCommand(DefaultActions()).Execute(); err != nil {
		os.Exit(1)
	}
}
