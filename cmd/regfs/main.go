package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"regfs/internal/cli"
	"regfs/internal/config"
	"regfs/internal/instance"
	"regfs/internal/lifecycle"
	"regfs/internal/logging"
	"regfs/internal/provider"
	"regfs/internal/provision"
)

var (
	logger = logging.GetLogger()
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	if level, ok := cfg.Level(); ok {
		logger.SetLevel(level)
	}

	// Interrupts end the running state the same way Enter does.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	code := cli.Execute(ctx, os.Args[1:], os.Stdout, func(ctx context.Context, root string) error {
		logger.Debug("Virtualization root: %s", root)
		logger.Debug("Configuration: %+v", *cfg)

		engine := provider.New(provider.WithConfig(cfg.Provider()))
		provisioner := provision.New(provision.HostLinker{},
			provision.WithTargetFormat(cfg.LinkTargetFormat),
			provision.WithPolicy(cfg.Policy()),
		)

		controller := lifecycle.New(instance.NewManager(engine), provisioner)
		return controller.Run(ctx, root)
	})

	stop()
	if code == 0 {
		logger.Info("Clean shutdown complete")
	}
	os.Exit(code)
}
