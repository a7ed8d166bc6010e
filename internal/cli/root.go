package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"offlinesync/internal/config"
	"offlinesync/internal/domain"
	"offlinesync/internal/events"
	"offlinesync/internal/logging"
	"offlinesync/internal/repository"
	"offlinesync/internal/service"
	"offlinesync/internal/transport"
	"offlinesync/internal/worker"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	open Opener
}

var ValidFormats = []string{"text", "json"}

// Session is an open queue plus the resources behind it.
type Session struct {
	Config *config.Config
	Store  domain.OperationStore
	Queue  domain.QueueService
	closer io.Closer
}

func (s *Session) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Opener builds a Session for a command.
type Opener func(ctx context.Context, opts *RootOptions) (*Session, error)

// NewRootCommand creates the queuectl root command backed by the configured store.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOpener(OpenSession)
}

func NewRootCommandWithOpener(open Opener) *cobra.Command {
	opts := &RootOptions{open: open}

	cmd := &cobra.Command{
		Use:   "queuectl",
		Short: "Inspect and drive the offline operation queue",
		Long: `queuectl reads and modifies the local offline queue directly.

sync is handed to the daemon when its API is enabled and reachable.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", defaultConfig, "path to config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewEnqueueCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewClearFailedCommand(opts))
	cmd.AddCommand(NewBackupCommand(opts))

	return cmd
}

// OpenSession wires the queue from the config file. Logs go to stderr and
// only with --verbose.
func OpenSession(ctx context.Context, opts *RootOptions) (*Session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := zerolog.Nop()
	if opts.Verbose {
		logCfg := cfg.Logging
		logCfg.Output = "stderr"
		logCfg.Format = "console"
		l, _, err := logging.New(logCfg, cfg.App)
		if err != nil {
			return nil, err
		}
		logger = *l
	}

	store, closer, err := repository.OpenStore(ctx, cfg, logging.Component(&logger, "store"))
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(&logger)
	replayer := worker.NewReplayWorker(store, transport.NewClient(cfg.Remote, nil), bus,
		worker.RetryPolicy{MaxRetries: cfg.Queue.MaxRetries}, logging.Component(&logger, "replay"))

	return &Session{
		Config: cfg,
		Store:  store,
		Queue:  service.NewQueueService(store, replayer, bus, logging.Component(&logger, "queue")),
		closer: closer,
	}, nil
}

// withSession opens a session, runs fn and closes the session.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(*Session, *OutputFormatter) error) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	session, err := opts.open(cmd.Context(), opts)
	if err != nil {
		_ = formatter.Error(ErrCodeOpen, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open queue", err)
	}
	defer session.Close()

	return fn(session, formatter)
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
