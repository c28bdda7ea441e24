package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/simplesurance/stagepromote/internal/blackout"
	"github.com/simplesurance/stagepromote/internal/cfg"
	"github.com/simplesurance/stagepromote/internal/githubclt"
	"github.com/simplesurance/stagepromote/internal/logfields"
	"github.com/simplesurance/stagepromote/internal/notify"
	"github.com/simplesurance/stagepromote/internal/promoter"
	"github.com/simplesurance/stagepromote/internal/retry"
	"github.com/simplesurance/stagepromote/internal/runlock"
)

const appName = "stagepromote"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught , terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

func startHTTPServer(listenAddr string, mux *http.ServeMux) {
	httpServer := http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	goodbye.Register(func(context.Context, os.Signal) {
		const shutdownTimeout = 30 * time.Second
		ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		logger.Debug(
			"terminating http server",
			logfields.Event("http_server_terminating"),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := httpServer.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down http server failed",
				logfields.Event("http_server_termination_failed"),
				zap.Error(err),
			)
		}
	})

	go func() {
		defer panicHandler()

		logger.Info(
			"http server started",
			logfields.Event("http_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("http server terminated", logfields.Event("http_server_terminated"))
			return
		}

		logger.Fatal(
			"http server terminated unexpectedly",
			logfields.Event("http_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

type arguments struct {
	Verbose    bool
	ConfigFile string
	Interval   time.Duration
	DryRun     bool
}

var args arguments

const defConfigFile = "/etc/stagepromote/config.toml"

func registerFlags(flags *pflag.FlagSet) {
	flags.BoolVarP(
		&args.Verbose,
		"verbose",
		"v",
		false,
		"enable verbose logging",
	)
	flags.StringVarP(
		&args.ConfigFile,
		"cfg-file",
		"c",
		defConfigFile,
		"path to the stagepromote configuration file, the default file is optional",
	)
}

// mustParseCfg loads the configuration file and applies environment
// variables. When the configuration file was not passed explicitly, it may
// not exist and the settings are read from the environment only.
func mustParseCfg(cfgFileIsExplicit bool) *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	config, err := cfg.LoadFile(args.ConfigFile, cfgFileIsExplicit)
	exitOnErr(fmt.Sprintf("could not load configuration file: %s", args.ConfigFile), err)

	err = config.ApplyEnv(os.LookupEnv)
	exitOnErr("could not apply environment variables", err)

	err = config.Validate()
	exitOnErr(fmt.Sprintf("invalid configuration in %s", args.ConfigFile), err)

	return config
}

func cfgFileFlagIsSet(cmd *cobra.Command) bool {
	f := cmd.Flag("cfg-file")
	return f != nil && f.Changed
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logFormat string, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = logFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

// defaultLogFormat returns console when stdout is a terminal and logfmt
// otherwise.
func defaultLogFormat() string {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		return "console"
	}

	return "logfmt"
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s \n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	logFormat := config.LogFormat
	if logFormat == "" {
		logFormat = defaultLogFormat()
	}

	switch logFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logFormat, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", logFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func promoterCfg(config *cfg.Config) *promoter.Config {
	return &promoter.Config{
		RepositoryOwner:           config.RepositoryOwner,
		Repository:                config.Repository,
		StageBranch:               config.StageBranch,
		ProductionBranch:          config.ProductionBranch,
		SyncPRTitle:               config.SyncPRTitle,
		SyncPRFooter:              config.SyncPRFooter,
		TeamMentions:              config.TeamMentions,
		ClaimSyncPRFiles:          config.ClaimSyncPRFiles,
		ReadyForStageLabel:        config.ReadyForStageLabel,
		HighPriorityLabel:         config.HighPriorityLabel,
		TestingStartedLabelPrefix: config.TestingStartedLabelPrefix,
		RequiredApprovals:         config.RequiredApprovals,
		OwnCheckName:              config.OwnCheckName,
		FilterQuery:               config.EligibilityFilterQuery,
		FetchConcurrency:          config.FetchConcurrency,
		MergeMethod:               config.MergeMethod,
		MergeDelay:                config.MergeDelayDuration(),
		DryRun:                    config.DryRun,
	}
}

func mustNewPromoter(config *cfg.Config) *promoter.Promoter {
	schedule, err := blackout.FromCfg(config.Blackout)
	exitOnErr("could not parse blackout windows", err)

	var notifier promoter.Notifier = notify.Nop{}
	if config.SlackWebhookURL != "" {
		notifier = notify.NewSlack(config.SlackWebhookURL)
	}

	p, err := promoter.New(
		githubclt.New(config.GithubAPIToken),
		retry.NewRetryer(config.APIRetryTimeoutDuration()),
		promoterCfg(config),
		promoter.WithNotifier(notifier),
		promoter.WithBlackoutSchedule(schedule),
	)
	exitOnErr("could not initialize promoter", err)

	logger.Info(
		"loaded cfg file",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", args.ConfigFile),
		logfields.RepositoryOwner(config.RepositoryOwner),
		logfields.Repository(config.Repository),
		zap.String("stage_branch", config.StageBranch),
		zap.String("production_branch", config.ProductionBranch),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		zap.String("slack_webhook_url", hide(config.SlackWebhookURL)),
		zap.Int("required_approvals", config.RequiredApprovals),
		zap.Bool("dry_run", config.DryRun),
		zap.Stringer("blackout_windows", schedule),
		zap.String("lock_file", config.LockFile),
		zap.String("log_format", config.LogFormat),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("log_level", config.LogLevel),
	)

	return p
}

// runLocked executes a single promoter run.
// If lockFile is not empty, the run is only executed when the lock can be
// acquired. It returns false if the run failed.
func runLocked(ctx context.Context, p *promoter.Promoter, lockFile string) bool {
	if lockFile != "" {
		lock, err := runlock.TryAcquire(lockFile)
		if err != nil {
			logger.Error(
				"acquiring run lock failed",
				logfields.Event("run_lock_failed"),
				zap.String("lock_file", lockFile),
				zap.Error(err),
			)
			return false
		}

		if lock == nil {
			logger.Info(
				"another run is in progress, skipping run",
				logfields.Event("run_lock_held"),
				zap.String("lock_file", lockFile),
			)
			return true
		}

		defer func() {
			if err := lock.Release(); err != nil {
				logger.Warn(
					"releasing run lock failed",
					logfields.Event("run_lock_release_failed"),
					zap.String("lock_file", lock.Path()),
					zap.Error(err),
				)
			}
		}()
	}

	summary := p.Run(ctx)

	return summary.Result != promoter.RunResultFailed
}

func runScheduled(ctx context.Context, p *promoter.Promoter, lockFile string, interval time.Duration) {
	logger.Info(
		"scheduled mode, running periodically",
		logfields.Event("schedule_started"),
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		runLocked(ctx, p, lockFile)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func run(cmd *cobra.Command, _ []string) error {
	config := mustParseCfg(cfgFileFlagIsSet(cmd))
	if args.DryRun {
		config.DryRun = true
	}

	mustInitLogger(config)

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
	})

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	goodbye.Register(func(context.Context, os.Signal) {
		cancelFn()
	})

	p := mustNewPromoter(config)

	if config.HTTPMetricsListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		startHTTPServer(config.HTTPMetricsListenAddr, mux)
	}

	interval := args.Interval
	if interval == 0 {
		interval = config.ScheduleIntervalDuration()
	}

	if interval > 0 {
		runScheduled(ctx, p, config.LockFile, interval)
		return nil
	}

	if !runLocked(ctx, p, config.LockFile) {
		return errors.New("run failed")
	}

	return nil
}

func printConfig(cmd *cobra.Command, _ []string) error {
	config := mustParseCfg(cfgFileFlagIsSet(cmd))
	config.GithubAPIToken = hide(config.GithubAPIToken)
	config.SlackWebhookURL = hide(config.SlackWebhookURL)

	return config.Marshal(cmd.OutOrStdout())
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           appName,
		Short:         "Merge ready pull requests into the stage branch and maintain the stage to production sync pull request",
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	registerFlags(rootCmd.PersistentFlags())
	rootCmd.Flags().DurationVar(
		&args.Interval,
		"interval",
		0,
		"run periodically in the given interval instead of once, overrides schedule_interval",
	)
	rootCmd.Flags().BoolVar(
		&args.DryRun,
		"dry-run",
		false,
		"simulate merges, do not merge pull requests",
	)

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "print the version and exit",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, Version)
			},
		},
		&cobra.Command{
			Use:   "print-config",
			Short: "print the effective configuration, with secrets hidden",
			RunE:  printConfig,
		},
	)

	return rootCmd
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		goodbye.Exit(context.Background(), 1)
	}

	goodbye.Exit(context.Background(), 0)
}
