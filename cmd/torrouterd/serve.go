package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/kardianos/service"

	"github.com/torrouter/torrouter/internal/agent"
	"github.com/torrouter/torrouter/internal/version"
)

// ServeCmd runs the HTTP control plane until interrupted.
type ServeCmd struct{}

func (c *ServeCmd) Run(globals *CLI) error {
	cfg, log, closer, err := globals.load()
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	a := agent.New(cfg, log)
	log.Info("torrouterd starting", "version", version.Version, "listen", cfg.Listen)

	if service.Interactive() {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return a.Run(ctx)
	}

	s, err := service.New(agent.NewProgram(a, log), agent.ServiceConfig(globals.serviceArgs()))
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	return s.Run()
}
