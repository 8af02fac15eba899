// Package transport establishes the network side of a session before
// any local process is spawned: reachability probes against the
// target host and an optional scan of its SSH host key.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.  The preflight prober
// takes one so tests can substitute an in-memory or failing dialer.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}
