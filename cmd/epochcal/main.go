package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"epochcal/internal/clock"
	"epochcal/internal/config"
	appLog "epochcal/internal/log"
	"epochcal/internal/scheduler"
	"epochcal/internal/timeconv"
	"epochcal/internal/web"
)

// flagConfig holds CLI flag values that override the config file.
type flagConfig struct {
	configPath string
	listen     string
	timezone   string
	once       bool
}

func main() {
	os.Exit(run())
}

func run() int {
	appLog.Info("epochcal starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}

	// CLI flags override config file values if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.timezone != "" {
		conf.Timezone = flags.timezone
	}

	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		appLog.Error("invalid log level", err, "log_level", conf.LogLevel)
		return 1
	}
	appLog.SetLevel(level)

	zone, err := conf.Zone()
	if err != nil {
		appLog.Error("unsupported timezone", err, "timezone", conf.Timezone, "supported", timeconv.Timezones())
		return 1
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", zone,
		"offset_seconds", zone.Offset(),
		"sample_cron", conf.SampleCron,
		"clock_source", conf.Clock.Source,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src := clock.DefaultSource(ctx, conf.Clock)
	appLog.Info("clock source selected", "source", src.Name())

	sched, err := scheduler.New(conf.SampleCron, src, zone)
	if err != nil {
		appLog.Error("failed to create scheduler", err)
		return 1
	}

	if flags.once {
		if _, err := sched.RunOnce(ctx); err != nil {
			appLog.Error("sample failed", err)
			return 1
		}
		return 0
	}

	// Log one sample right away so the first line does not wait for cron.
	if _, err := sched.RunOnce(ctx); err != nil {
		appLog.Error("initial sample failed", err)
	}
	sched.Start()

	var wg sync.WaitGroup
	exitCode := 0
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := web.StartServer(ctx, web.NewServer(conf, src, zone)); err != nil {
			appLog.Error("HTTP server failed", err)
			exitCode = 1
			stop()
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		appLog.Error("scheduler did not stop cleanly", err)
	}
	wg.Wait()

	appLog.Info("epochcal exiting")
	return exitCode
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/epochcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.timezone, "tz", "", "Timezone name (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Take and log one clock sample, then exit")

	flag.Parse()

	return cfg
}
