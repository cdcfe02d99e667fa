// Package app wires together the daemon's collaborators: configuration,
// logging, the store gateway, the scheduler adapter, and the supervisor
// loop. It is the shared core used by cmd/mdsuper-server.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mdsuper/mdsuper/internal/command"
	"github.com/mdsuper/mdsuper/internal/common"
	"github.com/mdsuper/mdsuper/internal/interfaces"
	"github.com/mdsuper/mdsuper/internal/scheduler"
	"github.com/mdsuper/mdsuper/internal/store"
	"github.com/mdsuper/mdsuper/internal/supervisor"
)

// App holds every initialized collaborator, the shared core of the daemon.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Store       interfaces.StoreManager
	Scheduler   interfaces.SchedulerAdapter
	Supervisor  *supervisor.Loop
	StartupTime time.Time
}

// Options carries the CLI-flag overrides that take precedence over
// config-file and environment values.
type Options struct {
	ConfigPath string

	StoreAddress   string
	StoreHost      string
	StorePort      int
	StoreNamespace string
	StoreDatabase  string
	StoreUser      string
	StorePassword  string // path-to-file, literal, or empty to prompt

	Queue string // scheduler override; empty = autodetect
	Clean bool

	LogDir  string
	Verbose bool
}

// getBinaryDir returns the directory containing the executable, used to
// resolve a default config path for self-contained deployment.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp loads configuration, applies CLI overrides, and constructs the
// logger, store gateway, scheduler adapter, and Supervisor loop.
func NewApp(ctx context.Context, opts Options) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = os.Getenv("MDSUPER_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "mdsuper.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "" // no config file; defaults + env + flags only
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("app: load config: %w", err)
	}
	applyOptions(config, opts)
	config.Store.BuildAddress()

	password, err := common.ResolvePassword(config.Store.Password)
	if err != nil {
		return nil, fmt.Errorf("app: resolve store password: %w", err)
	}
	config.Store.Password = password

	logger, err := common.NewLoggerFromConfig(config.Logging)
	if err != nil {
		return nil, fmt.Errorf("app: init logger: %w", err)
	}

	storeMgr, err := store.NewManager(ctx, store.Credentials{
		Address:   config.Store.Address,
		Namespace: config.Store.Namespace,
		Database:  config.Store.Database,
		User:      config.Store.User,
		Password:  config.Store.Password,
	}, logger, config.Timing.StoreRetries, config.Timing.StoreBackoff)
	if err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	sched, err := resolveScheduler(config, logger)
	if err != nil {
		storeMgr.Close()
		return nil, fmt.Errorf("app: resolve scheduler: %w", err)
	}

	invoker := command.NewInvoker(config.Timing.InvokeTimeout, nil)

	loop := supervisor.New(storeMgr, sched, invoker, logger, supervisor.Config{
		TickInterval:    config.Timing.Tick,
		MonitorInterval: config.Timing.Monitor,
		DependInterval:  config.Timing.Depend,
		SubmitNTrials:   config.Timing.SubmitTrials,
		SubmitBackoff:   config.Timing.SubmitBackoff,
		Clean:           config.Clean,
	})

	a := &App{
		Config:      config,
		Logger:      logger,
		Store:       storeMgr,
		Scheduler:   sched,
		Supervisor:  loop,
		StartupTime: startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("app initialized")
	return a, nil
}

func applyOptions(config *common.Config, opts Options) {
	if opts.StoreAddress != "" {
		config.Store.Address = opts.StoreAddress
	}
	if opts.StoreHost != "" {
		config.Store.Host = opts.StoreHost
	}
	if opts.StorePort != 0 {
		config.Store.Port = opts.StorePort
	}
	if opts.StoreNamespace != "" {
		config.Store.Namespace = opts.StoreNamespace
	}
	if opts.StoreDatabase != "" {
		config.Store.Database = opts.StoreDatabase
	}
	if opts.StoreUser != "" {
		config.Store.User = opts.StoreUser
	}
	if opts.StorePassword != "" {
		config.Store.Password = opts.StorePassword
	}
	if opts.Queue != "" {
		config.Scheduler.Name = opts.Queue
	}
	if opts.Clean {
		config.Clean = true
	}
	if opts.LogDir != "" {
		config.Logging.LogDir = opts.LogDir
	}
	if opts.Verbose {
		config.Logging.Verbose = true
	}
}

// resolveScheduler honors an explicit -q/--queue override; otherwise
// autodetects.
func resolveScheduler(config *common.Config, logger *common.Logger) (interfaces.SchedulerAdapter, error) {
	if config.Scheduler.Name != "" {
		return scheduler.FromName(config.Scheduler.Name, logger, config.Scheduler.RateLimit)
	}
	return scheduler.Autodetect(logger, config.Scheduler.RateLimit)
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("app: error closing store")
		}
		a.Store = nil
	}
}
