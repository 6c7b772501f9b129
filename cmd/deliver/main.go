// Command deliver runs a single delivery pass against the send queue and
// exits. It is meant for external schedulers (cron, Kubernetes CronJob)
// when the API server runs with its own scheduler disabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Notifuse/outreach/config"
	"github.com/Notifuse/outreach/internal/app"
	"github.com/Notifuse/outreach/pkg/logger"
)

var osExit = os.Exit

var newApp = app.NewApp

type options struct {
	reap    bool
	passes  int
	timeout time.Duration
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("deliver", flag.ContinueOnError)
	opts := options{}
	fs.BoolVar(&opts.reap, "reap", true, "return expired leases to the queue before delivering")
	fs.IntVar(&opts.passes, "passes", 1, "number of delivery passes to run")
	fs.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "overall time limit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.passes < 1 {
		return opts, fmt.Errorf("passes must be at least 1")
	}
	return opts, nil
}

func run(cfg *config.Config, appLogger logger.Logger, opts options) error {
	a := newApp(cfg, app.WithLogger(appLogger))

	steps := []func() error{
		a.InitTracing,
		a.InitDB,
		a.InitRedis,
		a.InitMailer,
		a.InitRepositories,
		a.InitServices,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			appLogger.WithField("error", err.Error()).Error("Failed to initialize delivery")
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	runErr := deliver(ctx, a, appLogger, opts)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func deliver(ctx context.Context, a app.AppInterface, appLogger logger.Logger, opts options) error {
	if opts.reap {
		if _, err := a.RunReaper(ctx); err != nil {
			appLogger.WithField("error", err.Error()).Error("Lease reaping failed")
			return err
		}
	}

	for i := 0; i < opts.passes; i++ {
		result, err := a.RunDelivery(ctx)
		if err != nil {
			appLogger.WithField("error", err.Error()).Error("Delivery pass failed")
			return err
		}
		appLogger.WithFields(map[string]interface{}{
			"pass":     i + 1,
			"claimed":  result.Claimed,
			"sent":     result.Sent,
			"failed":   result.Failed,
			"deferred": result.Deferred,
		}).Info("Delivery pass finished")

		if result.Claimed == 0 {
			break
		}
	}
	return nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		osExit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.NewLoggerWithLevel(cfg.LogLevel)
	if err := run(cfg, appLogger, opts); err != nil {
		osExit(1)
	}
}
