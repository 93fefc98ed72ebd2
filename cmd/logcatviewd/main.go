package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modoterra/logcatview/internal/buildinfo"
	"github.com/modoterra/logcatview/internal/logging"
	"github.com/modoterra/logcatview/pkg/config"
	"github.com/modoterra/logcatview/pkg/daemon"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(buildinfo.String("logcatviewd"))
		return
	}

	configPath := flag.String("config", "", "path to logcatview.yaml (default "+config.DefaultPath()+")")
	jsonLogs := flag.Bool("json", false, "log as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logcatviewd:", err)
		os.Exit(1)
	}
	logger := logging.Init(*jsonLogs, logging.ParseLevel(cfg.LogLevel))

	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("config validation", "path", cfg.FilePath, "err", e)
		}
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("daemon init", "err", err)
		os.Exit(1)
	}
	defer d.Shutdown()

	logger.Info("starting logcatviewd",
		"version", buildinfo.Version,
		"config", cfg.FilePath,
		"socket", cfg.Socket,
		"buffer", cfg.Buffer,
	)
	if err := d.Run(ctx); err != nil {
		logger.Error("daemon error", "err", err)
		d.Shutdown()
		os.Exit(1)
	}
	logger.Info("shutting down")
}
