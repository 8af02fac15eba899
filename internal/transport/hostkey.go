package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	ncerr "labdash/internal/errors"
)

// HostKeyStatus describes how a scanned key compares to known_hosts.
type HostKeyStatus string

const (
	HostKeyUnchecked HostKeyStatus = "unchecked" // no known_hosts file configured
	HostKeyUnknown   HostKeyStatus = "unknown"
	HostKeyKnown     HostKeyStatus = "known"
	HostKeyMismatch  HostKeyStatus = "mismatch"
)

// HostKey is the public key a server presented during the handshake.
type HostKey struct {
	Type        string        `json:"type"`
	Fingerprint string        `json:"fingerprint"` // SHA256:...
	Status      HostKeyStatus `json:"status"`

	key ssh.PublicKey
}

// errKeyCaptured aborts the handshake as soon as the server key is in
// hand; no authentication is ever attempted.
var errKeyCaptured = ncerr.New("host key captured")

// ScanHostKey runs the SSH key exchange over conn and returns the
// server's host key.  conn is consumed and closed.
func ScanHostKey(ctx context.Context, conn net.Conn, addr string, timeout time.Duration) (*HostKey, error) {
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline) //nolint:errcheck
	} else if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout)) //nolint:errcheck
	}

	var captured ssh.PublicKey
	cfg := &ssh.ClientConfig{
		User: "labdash-probe",
		HostKeyCallback: func(_ string, _ net.Addr, key ssh.PublicKey) error {
			captured = key
			return errKeyCaptured
		},
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err == nil {
		// A server that skips host-key verification is not one we
		// recognise; drop the connection.
		ssh.NewClient(c, chans, reqs).Close()
	}
	if captured == nil {
		host, port := splitHostPort(addr)
		if err == nil {
			err = fmt.Errorf("server presented no host key")
		}
		return nil, ncerr.WrapSSH("hostkey", host, port, err)
	}

	return &HostKey{
		Type:        captured.Type(),
		Fingerprint: ssh.FingerprintSHA256(captured),
		Status:      HostKeyUnchecked,
		key:         captured,
	}, nil
}

// CheckKnownHosts compares hk against the entries for addr in the
// known_hosts file at path and records the outcome in hk.Status.
// An empty path or /dev/null leaves the status unchecked.
func CheckKnownHosts(hk *HostKey, path, addr string) error {
	if path == "" || path == "/dev/null" {
		hk.Status = HostKeyUnchecked
		return nil
	}

	cb, err := knownhosts.New(path)
	if err != nil {
		return fmt.Errorf("loading known_hosts from %s: %w", path, err)
	}

	remote, _ := net.ResolveTCPAddr("tcp", addr)
	if remote == nil {
		remote = &net.TCPAddr{}
	}

	err = cb(addr, remote, hk.key)
	if err == nil {
		hk.Status = HostKeyKnown
		return nil
	}

	var keyErr *knownhosts.KeyError
	if ncerr.As(err, &keyErr) {
		if len(keyErr.Want) == 0 {
			hk.Status = HostKeyUnknown
			return nil
		}
		hk.Status = HostKeyMismatch
		return ncerr.ErrHostKeyMismatch
	}
	return err
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port) //nolint:errcheck
	return host, port
}
