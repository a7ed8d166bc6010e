package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"offlinesync/internal/database"
	"offlinesync/internal/models"
	"offlinesync/internal/service"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type enqueueOptions struct {
	endpoint string
	method   string
	data     string
	headers  []string
}

func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &enqueueOptions{}

	cmd := &cobra.Command{
		Use:           "enqueue",
		Short:         "Record a write for later replay",
		Example:       `  queuectl enqueue --method PUT --endpoint /events/42 --data '{"title":"X"}' -H "Authorization=Bearer abc"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, rootOpts, func(s *Session, out *OutputFormatter) error {
				return runEnqueue(cmd, s, out, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.endpoint, "endpoint", "e", "", "relative API path (required)")
	cmd.Flags().StringVarP(&opts.method, "method", "m", "POST", "POST, PUT, PATCH or DELETE")
	cmd.Flags().StringVarP(&opts.data, "data", "d", "", "JSON body")
	cmd.Flags().StringArrayVarP(&opts.headers, "header", "H", nil, "header as Name=Value, repeatable")
	_ = cmd.MarkFlagRequired("endpoint")

	return cmd
}

func runEnqueue(cmd *cobra.Command, s *Session, out *OutputFormatter, opts *enqueueOptions) error {
	req := models.EnqueueRequest{Endpoint: opts.endpoint, Method: opts.method}

	if opts.data != "" {
		if !json.Valid([]byte(opts.data)) {
			_ = out.Error(ErrCodeValidation, "--data is not valid JSON", nil)
			return NewExitError(ExitCommandError, "invalid data")
		}
		req.Data = json.RawMessage(opts.data)
	}

	if len(opts.headers) > 0 {
		req.Headers = make(map[string]string, len(opts.headers))
		for _, h := range opts.headers {
			name, value, ok := strings.Cut(h, "=")
			if !ok || strings.TrimSpace(name) == "" {
				_ = out.Error(ErrCodeValidation, fmt.Sprintf("invalid header %q, expected Name=Value", h), nil)
				return NewExitError(ExitCommandError, "invalid header")
			}
			req.Headers[strings.TrimSpace(name)] = value
		}
	}

	op, err := s.Queue.QueueOperation(cmd.Context(), req)
	if err != nil {
		code := ErrCodeStore
		if errors.Is(err, service.ErrInvalidMethod) || errors.Is(err, service.ErrEmptyEndpoint) {
			code = ErrCodeValidation
		}
		_ = out.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "enqueue", err)
	}

	return out.Success(op, func(w io.Writer) {
		fmt.Fprintf(w, "queued %s %s %s\n", op.ID, op.Method, op.Endpoint)
	})
}

func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List queued operations in replay order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, rootOpts, func(s *Session, out *OutputFormatter) error {
				if status != "" && !models.OperationStatus(status).Valid() {
					msg := fmt.Sprintf("invalid status %q", status)
					_ = out.Error(ErrCodeValidation, msg, nil)
					return NewExitError(ExitCommandError, msg)
				}
				ops, err := s.Queue.ListOperations(cmd.Context())
				if err != nil {
					_ = out.Error(ErrCodeStore, err.Error(), nil)
					return WrapExitError(ExitCommandError, "list", err)
				}
				ops = filterByStatus(ops, models.OperationStatus(status))
				return out.Success(ops, func(w io.Writer) { printOperations(w, ops) })
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "only show pending, syncing or failed")
	return cmd
}

func filterByStatus(ops []models.PendingOperation, status models.OperationStatus) []models.PendingOperation {
	if status == "" {
		return ops
	}
	out := ops[:0:0]
	for _, op := range ops {
		if op.Status == status {
			out = append(out, op)
		}
	}
	return out
}

func printOperations(w io.Writer, ops []models.PendingOperation) {
	if len(ops) == 0 {
		fmt.Fprintln(w, "queue is empty")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMETHOD\tENDPOINT\tSTATUS\tRETRIES\tQUEUED\tLAST ERROR")
	for _, op := range ops {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			op.ID, op.Method, op.Endpoint, op.Status, op.Retries,
			op.Timestamp.Local().Format(time.DateTime), op.LastError)
	}
	_ = tw.Flush()
}

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show queue counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, rootOpts, func(s *Session, out *OutputFormatter) error {
				stats, err := s.Queue.Stats(cmd.Context())
				if err != nil {
					_ = out.Error(ErrCodeStore, err.Error(), nil)
					return WrapExitError(ExitCommandError, "status", err)
				}
				return out.Success(stats, func(w io.Writer) {
					fmt.Fprintf(w, "pending: %d\nsyncing: %d\nfailed:  %d\ntotal:   %d\n",
						stats.Pending, stats.Syncing, stats.Failed, stats.Total)
				})
			})
		},
	}
}

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		local     bool
		daemonURL string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one replay pass now",
		Long: `Run one replay pass now.

When the daemon API is enabled the pass runs inside the daemon, so two
processes never send from the queue at once. If the daemon is not reachable,
or --local is given, the pass runs in this process.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, rootOpts, func(s *Session, out *OutputFormatter) error {
				if client := newDaemonClient(s.Config.API, daemonURL); client != nil && !local {
					summary, err := client.Sync(cmd.Context())
					if !errors.Is(err, errDaemonUnreachable) {
						return finishSync(out, summary, err)
					}
					out.VerboseLog("daemon not reachable, syncing locally: %v", err)
				}

				summary, err := s.Queue.ProcessPendingOperations(cmd.Context())
				return finishSync(out, summary, err)
			})
		},
	}

	cmd.Flags().BoolVar(&local, "local", false, "run the pass in this process even if the daemon is up")
	cmd.Flags().StringVar(&daemonURL, "daemon-url", "", "daemon API base URL (defaults to http://127.0.0.1:<api.port>)")
	return cmd
}

func finishSync(out *OutputFormatter, summary models.PassSummary, err error) error {
	if err != nil {
		_ = out.Error(ErrCodeStore, err.Error(), summary)
		return WrapExitError(ExitCommandError, "sync", err)
	}
	if err := out.Success(summary, func(w io.Writer) { printSummary(w, summary) }); err != nil {
		return err
	}
	if summary.Terminal > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d operation(s) failed permanently", summary.Terminal))
	}
	return nil
}

func printSummary(w io.Writer, s models.PassSummary) {
	if s.Attempted == 0 {
		fmt.Fprintln(w, "nothing to sync")
		return
	}
	fmt.Fprintf(w, "attempted %d, synced %d, failed %d", s.Attempted, s.Succeeded, s.Failed)
	if s.Terminal > 0 {
		fmt.Fprintf(w, " (%d need attention)", s.Terminal)
	}
	fmt.Fprintln(w)
}

func NewClearFailedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "clear-failed",
		Short:         "Delete operations that exhausted their retries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, rootOpts, func(s *Session, out *OutputFormatter) error {
				removed, err := s.Queue.ClearFailedOperations(cmd.Context())
				if err != nil {
					_ = out.Error(ErrCodeStore, err.Error(), map[string]int{"removed": removed})
					return WrapExitError(ExitCommandError, "clear failed", err)
				}
				return out.Success(map[string]int{"removed": removed}, func(w io.Writer) {
					fmt.Fprintf(w, "removed %d failed operation(s)\n", removed)
				})
			})
		},
	}
}

func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:           "backup",
		Short:         "Write a copy of the SQLite queue database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, rootOpts, func(s *Session, out *OutputFormatter) error {
				db, ok := s.Store.(*database.DB)
				if !ok {
					_ = out.Error(ErrCodeBackup, "backup is only supported for the sqlite backend", nil)
					return NewExitError(ExitCommandError, "backup unsupported")
				}

				cfg := s.Config.Storage.Backup
				cfg.Enabled = true
				if dir != "" {
					cfg.StoragePath = dir
				}
				if cfg.StoragePath == "" {
					cfg.StoragePath = "data/backups"
				}

				nop := zerolog.Nop()
				path, err := database.NewBackupService(db, cfg, &nop).PerformBackup(cmd.Context())
				if err != nil {
					_ = out.Error(ErrCodeBackup, err.Error(), nil)
					return WrapExitError(ExitFailure, "backup", err)
				}
				return out.Success(map[string]string{"path": path}, func(w io.Writer) {
					fmt.Fprintf(w, "backup written to %s\n", path)
				})
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "backup directory (defaults to storage.backup.storage_path)")
	return cmd
}
