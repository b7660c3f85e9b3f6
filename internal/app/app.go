package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"flowhook/internal/block"
	"flowhook/internal/config"
	"flowhook/internal/directory"
	"flowhook/internal/logging"
	"flowhook/internal/metrics"
	"flowhook/internal/pipeline"
	"flowhook/internal/server"
	"flowhook/internal/session"
	"flowhook/internal/session/redisstore"
)

// Define common errors for the application layer.
var (
	ErrUsage          = errors.New("usage error")
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrMissingArgs    = errors.New("missing required arguments")
	ErrBlockFailed    = errors.New("integration block reported an error")
)

// DefaultConfigFile is used when --config is not given. Unlike an explicit
// --config, a missing default file falls back to built-in defaults.
const DefaultConfigFile = "config.yaml"

// --- Interfaces for Testability ---

// configLoader defines the interface for loading configuration.
type configLoader interface {
	Load(filename string) (*config.Config, error)
}

// runnerFactory creates the block runner used by `run` and `serve`.
type runnerFactory interface {
	New(cfg *config.Config, m *metrics.Collectors) server.BlockRunner
}

// storeFactory opens the session store selected by cfg.
type storeFactory interface {
	New(ctx context.Context, cfg *config.SessionsConfig) (session.Store, func() error, error)
}

// directoryFactory creates a directory client.
type directoryFactory interface {
	New(cfg *config.DirectoryConfig, m *metrics.Collectors) (directory.Lookup, error)
}

// serveFunc blocks serving handler until ctx is done.
type serveFunc func(ctx context.Context, cfg *config.ServerConfig, handler http.Handler) error

// --- Default Implementations ---

type defaultConfigLoader struct{}

func (l *defaultConfigLoader) Load(filename string) (*config.Config, error) {
	return config.LoadConfig(filename)
}

type defaultRunnerFactory struct{}

func (f *defaultRunnerFactory) New(cfg *config.Config, m *metrics.Collectors) server.BlockRunner {
	return pipeline.NewRunnerWithOpts(cfg, pipeline.RunnerOpts{Metrics: m})
}

type defaultStoreFactory struct{}

func (f *defaultStoreFactory) New(ctx context.Context, cfg *config.SessionsConfig) (session.Store, func() error, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", config.BackendMemory:
		return session.NewMemoryStore(), func() error { return nil }, nil
	case config.BackendRedis:
		store := redisstore.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redisstore.WithPrefix(cfg.Redis.Prefix),
			redisstore.WithTTL(time.Duration(cfg.Redis.TTLSeconds)*time.Second),
		)
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at '%s': %w", cfg.Redis.Addr, err)
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend '%s'", cfg.Backend)
	}
}

type defaultDirectoryFactory struct{}

func (f *defaultDirectoryFactory) New(cfg *config.DirectoryConfig, m *metrics.Collectors) (directory.Lookup, error) {
	return directory.NewClient(cfg, m)
}

// --- AppRunner ---

// AppRunner encapsulates the application's execution logic and dependencies.
type AppRunner struct {
	configLoader     configLoader
	runnerFactory    runnerFactory
	storeFactory     storeFactory
	directoryFactory directoryFactory
	serve            serveFunc
	stdout           io.Writer
	stderr           io.Writer

	cfg *config.Config
}

// AppRunnerOpts allows configuring the AppRunner's dependencies.
type AppRunnerOpts struct {
	ConfigLoader     configLoader
	RunnerFactory    runnerFactory
	StoreFactory     storeFactory
	DirectoryFactory directoryFactory
	Serve            serveFunc
	Stdout           io.Writer
	Stderr           io.Writer
}

// NewAppRunner creates a new instance of the application runner with default dependencies.
func NewAppRunner() *AppRunner {
	return NewAppRunnerWithOpts(AppRunnerOpts{})
}

// NewAppRunnerWithOpts creates a new AppRunner allowing dependency injection.
func NewAppRunnerWithOpts(opts AppRunnerOpts) *AppRunner {
	a := &AppRunner{
		configLoader:     opts.ConfigLoader,
		runnerFactory:    opts.RunnerFactory,
		storeFactory:     opts.StoreFactory,
		directoryFactory: opts.DirectoryFactory,
		serve:            opts.Serve,
		stdout:           opts.Stdout,
		stderr:           opts.Stderr,
	}
	if a.configLoader == nil {
		a.configLoader = &defaultConfigLoader{}
	}
	if a.runnerFactory == nil {
		a.runnerFactory = &defaultRunnerFactory{}
	}
	if a.storeFactory == nil {
		a.storeFactory = &defaultStoreFactory{}
	}
	if a.directoryFactory == nil {
		a.directoryFactory = &defaultDirectoryFactory{}
	}
	if a.serve == nil {
		a.serve = server.ListenAndServe
	}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	if a.stderr == nil {
		a.stderr = os.Stderr
	}
	return a
}

// Usage prints the command-line help information to the specified writer.
func (a *AppRunner) Usage(writer io.Writer) {
	root := a.newRootCommand()
	root.SetOut(writer)
	_ = root.Usage()
}

// Run parses command-line arguments and executes the selected command.
func (a *AppRunner) Run(args []string) error {
	root := a.newRootCommand()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if isUsageError(err) {
			return fmt.Errorf("%w: %v", ErrUsage, err)
		}
		return err
	}
	return nil
}

func isUsageError(err error) bool {
	if errors.Is(err, ErrUsage) || errors.Is(err, ErrMissingArgs) || errors.Is(err, ErrConfigNotFound) || errors.Is(err, ErrBlockFailed) {
		return false
	}
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") ||
		strings.HasPrefix(msg, "unknown flag") ||
		strings.HasPrefix(msg, "unknown shorthand flag") ||
		strings.Contains(msg, "flag needs an argument") ||
		strings.Contains(msg, "invalid argument") ||
		strings.HasPrefix(msg, "accepts ")
}

func (a *AppRunner) newRootCommand() *cobra.Command {
	var configFile, logLevel string

	root := &cobra.Command{
		Use:           "flowhook",
		Short:         "Run chatbot flow integration blocks",
		Long:          `flowhook executes integration blocks: it resolves a block's request against a session, sends it once and folds mapped response fields back into the session.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init-block" || cmd.Name() == "help" {
				logging.SetupLogging(logLevel)
				return nil
			}
			return a.setup(cmd, configFile, logLevel)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&configFile, "config", DefaultConfigFile, "YAML configuration file")
	root.PersistentFlags().StringVar(&logLevel, "loglevel", "info", "Logging level (none, error, warn, info, debug)")

	root.AddCommand(
		a.newRunCommand(),
		a.newServeCommand(),
		a.newDirectoryCommand(),
		a.newValidateConfigCommand(),
		a.newInitBlockCommand(),
	)
	return root
}

// setup loads the configuration and applies logging settings. The --loglevel
// flag overrides the configured level when set explicitly.
func (a *AppRunner) setup(cmd *cobra.Command, configFile, logLevel string) error {
	logging.SetupLogging(logLevel)

	explicit := cmd.Flags().Changed("config")
	cfg, err := a.configLoader.Load(configFile)
	switch {
	case err == nil:
	// A missing default file is fine; the defaults cover every command but validate-config.
	case errors.Is(err, config.ErrNotFound) && !explicit && cmd.Name() != "validate-config":
		logging.Logf(logging.Debug, "No configuration file '%s', using defaults", configFile)
		cfg = config.Default()
	// A file named with --config has to exist.
	case errors.Is(err, config.ErrNotFound):
		logging.Logf(logging.Error, "Configuration file '%s' not found.", configFile)
		return ErrConfigNotFound
	default:
		logging.Logf(logging.Error, "Error loading configuration '%s': %v", configFile, err)
		return err
	}

	if err := logging.SetFormat(cfg.Logging.Format); err != nil {
		return err
	}
	// An explicit --loglevel wins over the configured level.
	if !cmd.Flags().Changed("loglevel") && cfg.Logging.Level != "" {
		logging.SetupLogging(cfg.Logging.Level)
	}
	a.cfg = cfg
	return nil
}

func (a *AppRunner) newRunCommand() *cobra.Command {
	var blockFile, sessionFile string
	var failOnError bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one integration block against a session",
		Long:  `Reads a block definition (JSON or YAML) and a session snapshot (JSON), sends the block's request once and prints the result as JSON.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if blockFile == "" {
				logging.Logf(logging.Error, "Error: --block is required.")
				return ErrMissingArgs
			}
			def, err := loadBlock(blockFile)
			if err != nil {
				return err
			}
			snap, err := loadSession(sessionFile)
			if err != nil {
				return err
			}

			// No session store for one-shot runs; the updated snapshot is printed instead.
			runner := a.runnerFactory.New(a.cfg, nil)
			out := runner.Execute(cmd.Context(), def, snap)
			if err := writeIndented(a.stdout, out); err != nil {
				return err
			}
			if failOnError {
				for _, l := range out.Logs {
					if l.IsError() {
						return fmt.Errorf("%w: %s", ErrBlockFailed, l.Description)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&blockFile, "block", "", "Block definition file (.json, .yaml or .yml)")
	cmd.Flags().StringVar(&sessionFile, "session", "", "Session snapshot file (JSON); empty session when omitted")
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "Exit with an error when the block logs an error")
	return cmd
}

func (a *AppRunner) newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long:  `Serves block execution, session storage and directory lookups over HTTP until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// The runner and the directory client report into the collectors served on /metrics.
			m := metrics.New()
			store, closeStore, err := a.storeFactory.New(ctx, &a.cfg.Sessions)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeStore(); err != nil {
					logging.Logf(logging.Warning, "Failed to close session store: %v", err)
				}
			}()

			var dir directory.Lookup
			if a.cfg.Directory.BaseURL != "" {
				dir, err = a.directoryFactory.New(&a.cfg.Directory, m)
				if err != nil {
					return err
				}
			} else {
				logging.Logf(logging.Info, "Directory base URL not configured, directory routes disabled")
			}

			handler := server.NewHandler(server.Options{
				Runner:      a.runnerFactory.New(a.cfg, m),
				Store:       store,
				Directory:   dir,
				Metrics:     m,
				MetricsPath: a.cfg.Server.MetricsPath,
			})
			logging.Logf(logging.Info, "Session backend: %s", a.cfg.Sessions.Backend)
			return a.serve(ctx, &a.cfg.Server, handler)
		},
	}
}

func (a *AppRunner) newDirectoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory",
		Short: "List routing directory entries",
	}

	lookup := func() (directory.Lookup, error) {
		return a.directoryFactory.New(&a.cfg.Directory, nil)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "teams",
			Short: "List teams",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := lookup()
				if err != nil {
					return err
				}
				teams, err := dir.ListTeams(cmd.Context())
				if err != nil {
					return err
				}
				return writeIndented(a.stdout, teams)
			},
		},
		&cobra.Command{
			Use:   "forwardings",
			Short: "List forwarding rules",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := lookup()
				if err != nil {
					return err
				}
				forwardings, err := dir.ListForwardings(cmd.Context())
				if err != nil {
					return err
				}
				return writeIndented(a.stdout, forwardings)
			},
		},
		&cobra.Command{
			Use:   "attendants TEAM_ID",
			Short: "List the attendants of a team",
			RunE: func(cmd *cobra.Command, args []string) error {
				if len(args) != 1 {
					logging.Logf(logging.Error, "Error: a team id is required.")
					return ErrMissingArgs
				}
				dir, err := lookup()
				if err != nil {
					return err
				}
				attendants, err := dir.ListAttendants(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeIndented(a.stdout, attendants)
			},
		},
	)
	return cmd
}

func (a *AppRunner) newValidateConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(a.stdout, "Configuration is valid.")
			return nil
		},
	}
}

func (a *AppRunner) newInitBlockCommand() *cobra.Command {
	var id, url string
	var yamlOut bool

	cmd := &cobra.Command{
		Use:   "init-block",
		Short: "Print a default block definition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			def := block.DefaultDefinition(id, url)
			if !yamlOut {
				return writeIndented(a.stdout, def)
			}
			b, err := block.MarshalYAML(def)
			if err != nil {
				return err
			}
			_, err = a.stdout.Write(b)
			return err
		},
	}
	cmd.Flags().StringVar(&id, "id", "integration", "Block and integration id")
	cmd.Flags().StringVar(&url, "url", "", "Target URL")
	cmd.Flags().BoolVar(&yamlOut, "yaml", false, "Print YAML instead of JSON")
	return cmd
}

func loadBlock(path string) (block.Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return block.Definition{}, fmt.Errorf("failed to read block file '%s': %w", path, err)
	}
	var def block.Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		def, err = block.ParseYAML(raw)
	default:
		def, err = block.Parse(raw)
	}
	if err != nil {
		return block.Definition{}, fmt.Errorf("invalid block file '%s': %w", path, err)
	}
	return def, nil
}

func loadSession(path string) (session.Snapshot, error) {
	if path == "" {
		return session.NewSnapshot(nil, nil)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("failed to read session file '%s': %w", path, err)
	}
	var snap session.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return session.Snapshot{}, fmt.Errorf("invalid session file '%s': %w", path, err)
	}
	return snap, nil
}

func writeIndented(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
