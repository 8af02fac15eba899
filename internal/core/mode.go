// Package core is the orchestration layer.  It composes the server,
// session and transport packages into complete operational modes and
// provides a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	pty, launcher, transport  →  session  →  server  →  core  →  cmd (CLI)
package core

import "context"

// Mode represents a complete operational mode of labdash (serve the
// terminal bridge, or attach to one as a client).  Each mode owns its
// full lifecycle from startup to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
