package transport

import (
	"context"
	"time"

	"labdash/config"
	ncerr "labdash/internal/errors"
	"labdash/internal/retry"
	"labdash/util"
)

// ProbeResult is what a successful preflight learned about the target.
type ProbeResult struct {
	Addr    string
	Elapsed time.Duration
	HostKey *HostKey // nil when scanning is disabled or failed
}

// Prober checks that a target accepts TCP connections before a local
// pseudo-terminal and login process are committed to it.  Each target
// address has its own circuit breaker so a dead host fails fast for
// every browser tab pointed at it.
type Prober struct {
	Dialer      Dialer
	Timeout     time.Duration
	HostKeyScan bool
	KnownHosts  string

	// Backoff returns the retry schedule for one probe.
	Backoff func() *retry.Backoff

	breakers *retry.BreakerSet
	logger   *util.Logger
}

// NewProber builds a Prober from the preflight section of cfg.
func NewProber(cfg *config.Config, logger *util.Logger) *Prober {
	return &Prober{
		Dialer:      &TCPDialer{Timeout: cfg.ConnectTimeout},
		Timeout:     cfg.ConnectTimeout,
		HostKeyScan: cfg.HostKeyScan,
		KnownHosts:  cfg.KnownHostsPath,
		Backoff:     func() *retry.Backoff { return retry.ProbeBackoff(ncerr.IsRetryable) },
		breakers: retry.NewBreakerSet(&retry.CircuitBreakerConfig{
			MaxFailures:  cfg.BreakerThreshold,
			ResetTimeout: cfg.BreakerReset,
			OnStateChange: func(from, to retry.State) {
				logger.Verbose("preflight breaker %s → %s", from, to)
			},
		}),
		logger: logger.With("preflight:"),
	}
}

// Probe dials host:port, retrying transient failures, and optionally
// scans the SSH host key.  Any failure to reach the target is returned
// as a launch failure.  A host-key scan failure is only logged.
func (p *Prober) Probe(ctx context.Context, host string, port int) (*ProbeResult, error) {
	addr := util.FormatAddr(host, port)
	start := time.Now()

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var res ProbeResult
	res.Addr = addr

	err := p.breakers.For(addr).Execute(func() error {
		return p.backoff().Do(ctx, func(attempt int) error {
			p.logger.Debug("dial %s (attempt %d)", addr, attempt)
			conn, err := p.Dialer.Dial(ctx, "tcp", addr)
			if err != nil {
				return err
			}

			if !p.HostKeyScan {
				conn.Close()
				return nil
			}

			hk, err := ScanHostKey(ctx, conn, addr, p.Timeout)
			if err != nil {
				p.logger.Warn("host key scan of %s failed: %v", addr, err)
				return nil
			}
			if err := CheckKnownHosts(hk, p.KnownHosts, addr); err != nil {
				p.logger.Warn("%s presented %s %s: %v", addr, hk.Type, hk.Fingerprint, err)
			}
			res.HostKey = hk
			return nil
		})
	})
	res.Elapsed = time.Since(start)

	if err != nil {
		return nil, ncerr.LaunchFailed("preflight", err)
	}
	p.logger.Verbose("%s reachable in %s", addr, res.Elapsed.Round(time.Millisecond))
	return &res, nil
}

func (p *Prober) backoff() *retry.Backoff {
	if p.Backoff == nil {
		return retry.ProbeBackoff(ncerr.IsRetryable)
	}
	return p.Backoff()
}
