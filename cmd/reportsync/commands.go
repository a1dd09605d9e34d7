package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/benbakir04-create/teachers-report/backend/internal/api"
	"github.com/benbakir04-create/teachers-report/backend/internal/db"
	apperrors "github.com/benbakir04-create/teachers-report/backend/internal/errors"
	"github.com/benbakir04-create/teachers-report/backend/internal/models"
	syncpkg "github.com/benbakir04-create/teachers-report/backend/internal/sync"
	"github.com/benbakir04-create/teachers-report/backend/internal/sync/queue"
	"github.com/benbakir04-create/teachers-report/backend/internal/uuid"
)

// withApp wires the service, runs fn and reports its error through the
// output formatter.
func withApp(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, a *app, out *OutputFormatter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	a, err := newApp(ctx, opts.cfg)
	if err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, "failed to open store", err)
	}
	defer a.Close()

	if err := fn(ctx, a, out); err != nil {
		out.Error(err)
		return WrapExitError(ExitFailure, cmd.Name()+" failed", err)
	}
	return nil
}

// NewServeCommand creates the serve subcommand.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and drain the queue in the background",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				if addr == "" {
					addr = a.cfg.ListenAddr
				}

				hub := api.NewWSHub(a.logger)
				unsubscribe := a.worker.Events().Subscribe(hub.Listener())
				defer unsubscribe()

				if a.prober != nil {
					go a.prober.Run(ctx)
				}
				a.scheduler.Start(ctx)
				defer a.scheduler.Stop()

				server := api.NewServer(api.Deps{
					Reports:   a.reports,
					Queue:     a.queue,
					Scheduler: a.scheduler,
					Observer:  a.observer,
					Hub:       hub,
					Degraded:  a.store.Degraded,
				}, a.logger)
				return server.ListenAndServe(ctx, addr)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides listen_addr)")
	return cmd
}

// NewSaveCommand creates the save subcommand.
func NewSaveCommand(opts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save a report from a JSON file and deliver it when online",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := readReport(cmd.InOrStdin(), file)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read report", err)
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				a.probeOnce(ctx)
				result, err := a.reports.Save(ctx, report)
				if err != nil {
					return err
				}
				return out.Success(result, func(w io.Writer) {
					fmt.Fprintf(w, "%s (report %s)\n", result.Message, result.Report.ID)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "report JSON file, - for stdin")
	cmd.MarkFlagRequired("file")
	return cmd
}

func readReport(stdin io.Reader, file string) (models.Report, error) {
	var report models.Report
	r := stdin
	if file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return report, err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return report, fmt.Errorf("invalid report JSON: %w", err)
	}
	return report, nil
}

// NewPendingCommand creates the pending subcommand.
func NewPendingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List queued operations in delivery order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				items, err := a.queue.ListPending(ctx)
				if err != nil {
					return err
				}
				return out.Success(items, func(w io.Writer) { printItems(w, items) })
			})
		},
	}
}

// NewCountCommand creates the count subcommand.
func NewCountCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of queued operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				stats, err := a.queue.Stats(ctx)
				if err != nil {
					return err
				}
				return out.Success(stats, func(w io.Writer) {
					fmt.Fprintln(w, stats.Total)
				})
			})
		},
	}
}

// NewDrainCommand creates the drain subcommand.
func NewDrainCommand(opts *RootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Deliver queued operations to the remote endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				if force {
					a.observer.Set(true)
				} else {
					a.probeOnce(ctx)
				}
				result, err := a.worker.Drain(ctx)
				if err != nil {
					return err
				}
				return out.Success(result, func(w io.Writer) { printDrain(w, result) })
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "treat the endpoint as reachable")
	return cmd
}

// NewDeadLettersCommand creates the dead-letters subcommand.
func NewDeadLettersCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dead-letters",
		Short: "List operations that exhausted their retries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				items, err := a.queue.DeadLetters(ctx)
				if err != nil {
					return err
				}
				return out.Success(items, func(w io.Writer) { printItems(w, items) })
			})
		},
	}
}

// NewRequeueCommand creates the requeue subcommand.
func NewRequeueCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <id>",
		Short: "Move a dead-lettered operation back to the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := uuid.Validate(args[0]); err != nil {
				return WrapExitError(ExitCommandError, "invalid id", apperrors.Wrap(apperrors.ErrInvalid, "invalid id", err))
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				item, err := a.queue.Requeue(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Success(item, func(w io.Writer) {
					fmt.Fprintf(w, "Requeued %s\n", item.ID)
				})
			})
		},
	}
}

// migrateStatus is the output of the migrate subcommand.
type migrateStatus struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
	Version int    `json:"version" yaml:"version"`
}

// NewMigrateCommand creates the migrate subcommand.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations, or roll back the latest with --down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

			database, err := db.Open(opts.cfg.DataDir)
			if err != nil {
				out.Error(err)
				return WrapExitError(ExitFailure, "failed to open database", err)
			}
			defer database.Close()

			migrator := db.NewMigrator(database.DB.DB, db.Migrations())
			if down {
				if err = migrator.Initialize(); err == nil {
					err = migrator.Down()
				}
			} else {
				err = database.Migrate()
			}
			if err != nil {
				out.Error(err)
				return WrapExitError(ExitFailure, "migration failed", err)
			}
			version, err := migrator.CurrentVersion()
			if err != nil {
				out.Error(err)
				return WrapExitError(ExitFailure, "failed to read schema version", err)
			}

			status := migrateStatus{DataDir: opts.cfg.DataDir, Version: version}
			return out.Success(status, func(w io.Writer) {
				fmt.Fprintf(w, "Schema at version %d\n", status.Version)
			})
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back the most recent migration")
	return cmd
}

// NewSettingCommand creates the setting subcommand group.
func NewSettingCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setting",
		Short: "Read and write stored settings",
	}

	var secret bool
	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				if err := a.reports.SetSetting(ctx, args[0], args[1], secret); err != nil {
					return err
				}
				return out.Success(map[string]string{"key": args[0]}, func(w io.Writer) {
					fmt.Fprintf(w, "Stored %s\n", args[0])
				})
			})
		},
	}
	set.Flags().BoolVar(&secret, "secret", false, "encrypt the value with secrets.passphrase")

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app, out *OutputFormatter) error {
				setting, err := a.reports.GetSetting(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Success(setting, func(w io.Writer) {
					fmt.Fprintln(w, setting.Value)
				})
			})
		},
	}

	cmd.AddCommand(set, get)
	return cmd
}

func printItems(w io.Writer, items []*queue.Item) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No items")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSEQ\tACTION\tSTATUS\tRETRIES\tQUEUED\tLAST ERROR")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%s\t%s\n",
			item.ID, item.Seq, item.Payload.Action, item.Status, item.RetryCount,
			item.CreatedAtTime().Local().Format(time.DateTime), item.LastError)
	}
	tw.Flush()
}

func printDrain(w io.Writer, r syncpkg.DrainResult) {
	if r.Offline {
		fmt.Fprintln(w, "Offline: nothing attempted")
		return
	}
	fmt.Fprintf(w, "Attempted %d, synced %d, rejected %d, failed %d, dead-lettered %d, skipped %d, remaining %d\n",
		r.Attempted, r.Synced, r.Rejected, r.Failed, r.DeadLettered, r.Skipped, r.Remaining)
}
