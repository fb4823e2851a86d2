// Package cli provides the hermesctl operations commands.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/app"
	"github.com/hermes-erp/hermes/internal/platform/db"
	"github.com/hermes-erp/hermes/jobs"
)

// ExitError carries a non-zero exit code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return "exit status " + strconv.Itoa(e.Code)
}

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

var postingModules = []string{jobs.ModuleSales, jobs.ModuleProcurement, jobs.ModulePayroll}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	var envFile string
	var debug bool
	var cfg *app.Config

	root := &cobra.Command{
		Use:           "hermesctl",
		Short:         "Operate the Hermes ledger and its background jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("load %s: %w", envFile, err)
				}
			} else if !app.InTestMode() {
				_ = godotenv.Load()
			}
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			loaded, err := app.LoadConfig()
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", "", "env file to load (default .env when present)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	config := func() *app.Config { return cfg }
	root.AddCommand(newJobsCommand(config), newPostingsCommand(config), newLedgerCommand(config), newSchemaCommand(config))
	return root
}

func redisOpt(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr}
}

func withJobsCLI(cfg *app.Config, fn func(*JobsCLI) error) error {
	client := asynq.NewClient(redisOpt(cfg))
	defer client.Close()
	inspector := asynq.NewInspector(redisOpt(cfg))
	defer inspector.Close()
	return fn(NewJobsCLI(client, inspector, postingModules))
}

func newJobsCommand(config func() *app.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Inspect and trigger background jobs"}

	var asJSON bool
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(config(), func(c *JobsCLI) error {
				st, err := c.InspectQueue(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(st)
				}
				for _, q := range st {
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
						q.Queue, q.Pending, q.Active, q.Scheduled, q.Retry, q.Archived); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	stats.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	trigger := &cobra.Command{
		Use:       "trigger <sweep|integrity>",
		Short:     "Enqueue a periodic job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"sweep", "integrity"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(config(), func(c *JobsCLI) error {
				info, err := c.Trigger(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s\n", info.Type, info.ID)
				return err
			})
		},
	}

	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJobsCLI(config(), func(c *JobsCLI) error {
				tasks, err := c.ListScheduled(cmd.Context(), size)
				if err != nil {
					return err
				}
				for _, t := range tasks {
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s next=%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02T15:04:05Z07:00")); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	scheduled.Flags().IntVar(&size, "size", 10, "page size")

	cmd.AddCommand(stats, trigger, scheduled)
	return cmd
}

func newPostingsCommand(config func() *app.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "postings", Short: "Manage unposted documents"}
	retry := &cobra.Command{
		Use:   "retry <module> <document-id>",
		Short: "Queue a posting retry for one document",
		Long:  "Queue a posting retry for one document. Modules: sales, procurement, payroll.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid document id %q", args[1])
			}
			return withJobsCLI(config(), func(c *JobsCLI) error {
				queued, err := c.RetryPosting(cmd.Context(), args[0], id)
				if err != nil {
					return err
				}
				if !queued {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "retry already queued")
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), "retry queued")
				return err
			})
		},
	}
	cmd.AddCommand(retry)
	return cmd
}

func newLedgerCommand(config func() *app.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Ledger consistency checks"}
	var asJSON bool
	check := &cobra.Command{
		Use:   "check",
		Short: "List journal entries whose lines do not balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config()
			pool, err := db.New(cmd.Context(), cfg.PGDSN, cfg.PGMaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()
			svc := accounting.NewService(accounting.NewRepository(pool), nil, slog.Default())
			code := NewLedgerCLI(svc).CheckCommand(cmd.Context(), LedgerCheckOptions{
				JSONOutput: asJSON,
				Stdout:     cmd.OutOrStdout(),
				Stderr:     cmd.ErrOrStderr(),
			})
			if code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
	check.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.AddCommand(check)
	return cmd
}

func newSchemaCommand(config func() *app.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "schema", Short: "Database schema helpers"}
	apply := &cobra.Command{
		Use:   "apply",
		Short: "Create the tables on an empty database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config()
			pool, err := db.New(cmd.Context(), cfg.PGDSN, cfg.PGMaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.ApplySchema(cmd.Context(), pool); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return err
		},
	}
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Load the stock chart of accounts and currencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config()
			pool, err := db.New(cmd.Context(), cfg.PGDSN, cfg.PGMaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := db.ApplySeed(cmd.Context(), pool); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "seed applied")
			return err
		},
	}
	cmd.AddCommand(apply, seed)
	return cmd
}
