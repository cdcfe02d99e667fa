// Command mdsuper-server runs the supervisor daemon: it polls a relational
// store for molecular-dynamics simulation rows and drives each through its
// lifecycle by submitting, monitoring, and resolving dependencies against
// an HPC batch scheduler.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/mdsuper/mdsuper/internal/app"
	"github.com/mdsuper/mdsuper/internal/common"
)

// shutdownGrace bounds how long in-flight workers are given to exit after
// the supervisor's tick loop stops.
const shutdownGrace = 10 * time.Second

func main() {
	opts, configPath := parseFlags()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts.ConfigPath = configPath
	a, err := app.NewApp(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mdsuper-server: failed to initialize: %v\n", err)
		os.Exit(1)
	}

	common.PrintBanner(a.Config, a.Scheduler.Name())
	a.Logger.Info().Str("scheduler", a.Scheduler.Name()).Msg("mdsuper-server starting")

	a.Supervisor.Run(ctx)

	a.Logger.Info().Dur("grace", shutdownGrace).Msg("shutdown signal observed, waiting for in-flight workers")
	waitWithGrace(a, shutdownGrace)

	common.PrintShutdownBanner()
	a.Close()
	os.Exit(0)
}

// waitWithGrace waits for every spawned worker to exit, but no longer than
// grace: the host process force-terminates survivors by exiting
// regardless.
func waitWithGrace(a *app.App, grace time.Duration) {
	doneWaiting := make(chan struct{})
	go func() {
		a.Supervisor.Wait()
		close(doneWaiting)
	}()

	select {
	case <-doneWaiting:
	case <-time.After(grace):
		a.Logger.Warn().Msg("grace period elapsed, exiting with workers still running")
	}
}

// parseFlags builds the daemon's CLI surface with pflag and returns the
// resulting app.Options plus the resolved config file path.
func parseFlags() (app.Options, string) {
	var opts app.Options
	var configPath string

	flag.StringVar(&configPath, "config", "", "path to a TOML configuration file")
	flag.StringVar(&opts.StoreHost, "host", "", "store host (default \"localhost\")")
	flag.IntVar(&opts.StorePort, "port", 0, "store port (default 8000)")
	flag.StringVar(&opts.StoreDatabase, "dbname", "", "store database name")
	flag.StringVarP(&opts.StoreUser, "user", "U", "", "store user name")
	flag.StringVarP(&opts.StorePassword, "password", "W", "", "store password: a literal, a path to a file, or omit to prompt")
	flag.StringVarP(&opts.Queue, "queue", "q", "", "force scheduler name (slurm|sge); default autodetect")
	flag.BoolVar(&opts.Clean, "clean", false, "delete JSCRIPTS/JLOGS files on monitor completion")
	flag.StringVar(&opts.LogDir, "log_dir", "", "directory for the log file (mdsuper.log, appended, not rotated)")
	flag.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable DEBUG-level logging")

	flag.Parse()

	return opts, configPath
}
