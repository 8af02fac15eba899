package core

import (
	"context"
	"fmt"

	"labdash/internal/server"
	"labdash/util"
)

// ServeMode runs the terminal bridge until the context is cancelled.
type ServeMode struct {
	Server *server.Server
	Logger *util.Logger
}

// Run serves HTTP and WebSocket traffic.  Cancelling ctx shuts the
// server down and closes every open session before Run returns.
func (m *ServeMode) Run(ctx context.Context) error {
	if err := m.Server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	m.Logger.Verbose("server stopped")
	return nil
}
