package core

import (
	"fmt"
	"os"

	"labdash/config"
	"labdash/internal/metrics"
	"labdash/internal/server"
	"labdash/internal/session"
	"labdash/util"
)

// Build constructs the appropriate Mode from the given configuration.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Attach {
		return buildAttach(cfg, logger)
	}
	return buildServe(cfg, logger)
}

// ── mode builders ────────────────────────────────────────────────────

func buildServe(cfg *config.Config, logger *util.Logger) (Mode, error) {
	opts := session.NewOptions(cfg, metrics.New(), logger)
	return &ServeMode{
		Server: server.New(cfg, opts, logger),
		Logger: logger,
	}, nil
}

func buildAttach(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.TargetHost == "" {
		return nil, fmt.Errorf("attach: no target host")
	}
	return &AttachMode{
		URL:         cfg.AttachURL,
		Host:        cfg.TargetHost,
		Port:        cfg.TargetPort,
		User:        cfg.TargetUser,
		AskPassword: cfg.TargetPassword,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Logger:      logger,
	}, nil
}
