// Package main is the entry point for retryctl, which runs a command, an
// HTTP GET or a Redis PING under a configurable retry policy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/avaretry/internal/config"
	"github.com/vyrodovalexey/avaretry/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Process exit codes.
const (
	exitSuccess   = 0
	exitFailure   = 1
	exitCancelled = 130
)

// defaultInterval is the pause between invocations in watch mode.
const defaultInterval = 10 * time.Second

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	url         string
	redisAddr   string
	watch       bool
	interval    time.Duration
	showVersion bool
	command     []string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run is main without the process exit, returning the exit code.
func run(args []string, stdout, stderr io.Writer) int {
	flags, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitSuccess
		}
		fmt.Fprintf(stderr, "retryctl: %v\n", err)
		return exitFailure
	}

	if flags.showVersion {
		printVersion(stdout)
		return exitSuccess
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runContext(ctx, flags, stdout, stderr)
}

// parseFlags parses command line flags. Trailing arguments are the command
// to execute.
func parseFlags(args []string, output io.Writer) (cliFlags, error) {
	fs := flag.NewFlagSet("retryctl", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: retryctl [flags] [-url URL | -redis ADDR | -- command [args...]]\n\n")
		fs.PrintDefaults()
	}

	var flags cliFlags
	fs.StringVar(&flags.configPath, "config", getEnvOrDefault("RETRYCTL_CONFIG", ""),
		"Path to configuration file")
	fs.StringVar(&flags.logLevel, "log-level", getEnvOrDefault("RETRYCTL_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error), overrides the configuration file")
	fs.StringVar(&flags.logFormat, "log-format", getEnvOrDefault("RETRYCTL_LOG_FORMAT", ""),
		"Log format (json, console), overrides the configuration file")
	fs.StringVar(&flags.url, "url", getEnvOrDefault("RETRYCTL_URL", ""),
		"URL to GET")
	fs.StringVar(&flags.redisAddr, "redis", getEnvOrDefault("RETRYCTL_REDIS", ""),
		"Redis address to PING")
	fs.BoolVar(&flags.watch, "watch", getEnvBool("RETRYCTL_WATCH", false),
		"Repeat the invocation every interval and reload the configuration file on change")
	fs.DurationVar(&flags.interval, "interval", getEnvDuration("RETRYCTL_INTERVAL", defaultInterval),
		"Pause between invocations in watch mode")
	fs.BoolVar(&flags.showVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	flags.command = fs.Args()

	if flags.showVersion {
		return flags, nil
	}
	if err := flags.validate(); err != nil {
		fs.Usage()
		return cliFlags{}, err
	}
	return flags, nil
}

func (f cliFlags) validate() error {
	targets := 0
	if f.url != "" {
		targets++
	}
	if f.redisAddr != "" {
		targets++
	}
	if len(f.command) > 0 {
		targets++
	}

	switch {
	case targets == 0:
		return errors.New("nothing to run: give -url, -redis or a command")
	case targets > 1:
		return errors.New("-url, -redis and a command are mutually exclusive")
	case f.watch && f.interval <= 0:
		return fmt.Errorf("invalid -interval %s", f.interval)
	}
	return nil
}

// printVersion prints version information.
func printVersion(w io.Writer) {
	fmt.Fprintf(w, "retryctl version %s\n", version)
	fmt.Fprintf(w, "  Build time: %s\n", buildTime)
	fmt.Fprintf(w, "  Git commit: %s\n", gitCommit)
}

// runContext loads the configuration, runs the target and maps the outcome
// to an exit code.
func runContext(ctx context.Context, flags cliFlags, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(stderr, "retryctl: %v\n", err)
		return exitFailure
	}

	logger, err := initLogger(cfg, flags)
	if err != nil {
		fmt.Fprintf(stderr, "retryctl: %v\n", err)
		return exitFailure
	}
	defer func() { _ = logger.Sync() }()

	logger.Debug("starting retryctl",
		observability.String("version", version),
		observability.String("config", flags.configPath),
		observability.String("policy", cfg.Policy.Name),
	)

	t := newTarget(flags, stdout, stderr)

	app, err := newApplication(ctx, cfg, t, logger)
	if err != nil {
		logger.Error("failed to initialize", observability.Error(err))
		return exitFailure
	}
	defer app.shutdown()

	if flags.watch {
		if flags.configPath != "" {
			app.watchConfig(ctx, flags.configPath)
		}
		return app.watch(ctx, flags.interval)
	}
	return exitCode(ctx, app.invoke(ctx))
}

// loadConfig loads the configuration file, or the defaults when none is
// given.
func loadConfig(flags cliFlags) (*config.Config, error) {
	if flags.configPath == "" {
		return config.DefaultConfig(), nil
	}
	path, err := config.ResolveConfigPath(flags.configPath)
	if err != nil {
		return nil, err
	}
	return config.LoadConfig(path)
}

// initLogger builds the logger. Flags override the configuration file.
func initLogger(cfg *config.Config, flags cliFlags) (observability.Logger, error) {
	logCfg := observability.DefaultLogConfig()
	if cfg.Observability.LogLevel != "" {
		logCfg.Level = cfg.Observability.LogLevel
	}
	if cfg.Observability.LogFormat != "" {
		logCfg.Format = cfg.Observability.LogFormat
	}
	if flags.logLevel != "" {
		logCfg.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		logCfg.Format = flags.logFormat
	}

	logger, err := observability.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// exitCode maps the result of an invocation to the process exit code.
func exitCode(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case ctx.Err() != nil, errors.Is(err, context.Canceled):
		return exitCancelled
	default:
		return exitFailure
	}
}
