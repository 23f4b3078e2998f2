// Package supervisor runs the copy-trading engine's top-level state machine:
// authenticate both accounts, run an initial recovery pass, then run the
// Stream Consumer until shutdown is requested or a fatal error occurs.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// State names a step of the supervisor's run sequence, used only for
// logging and health reporting.
type State string

const (
	StateInit           State = "INIT"
	StateAuthenticating State = "AUTHENTICATING"
	StateConnecting     State = "CONNECTING"
	StateReady          State = "READY"
	StateDraining       State = "DRAINING"
	StateStopped        State = "STOPPED"
)

// StreamRunner is the subset of stream.Consumer the Supervisor depends on.
type StreamRunner interface {
	Run(ctx context.Context) error
}

// Recoverer is the subset of recovery.Recovery the Supervisor depends on.
type Recoverer interface {
	Run(ctx context.Context) error
}

// Drainer reports in-flight work so the Supervisor can wait for it to finish
// on shutdown instead of sleeping for a fixed window regardless of whether
// anything is still running.
type Drainer interface {
	Wait(ctx context.Context) error
}

// Archiver copies orders (of any status), events, and audit rows older than
// a retention cutoff to cold storage. The subset of s3blob.Archiver the
// Supervisor depends on.
type Archiver interface {
	ArchiveOrders(ctx context.Context, before time.Time) (int64, error)
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
	ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
}

// archiveCheckInterval is how often the archival pass re-evaluates the
// retention cutoff. The pack carries no cron-expression parser, so the
// configured archive_cron value is informational (for operators wiring an
// external scheduler against the same cutoff); this process's own archival
// loop runs on a fixed poll interval instead.
const archiveCheckInterval = 1 * time.Hour

// Config carries the Supervisor's timing parameters.
type Config struct {
	DrainTimeout time.Duration
	ArchiveAfter time.Duration
}

// Supervisor owns the process's top-level run loop and graceful shutdown.
type Supervisor struct {
	leader   domain.Broker
	follower domain.Broker
	consumer StreamRunner
	recovery Recoverer
	drainer  Drainer
	archiver Archiver
	cfg      Config
	logger   *slog.Logger

	state State
}

// New creates a Supervisor. leader and follower are used only to verify
// both accounts authenticate before the stream is opened. drainer and
// archiver may both be nil: a nil drainer falls back to a fixed sleep on
// drain, and a nil archiver (e.g. S3 was unreachable at startup) disables
// the archival pass entirely.
func New(leader, follower domain.Broker, consumer StreamRunner, recovery Recoverer, drainer Drainer, archiver Archiver, cfg Config, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		leader:   leader,
		follower: follower,
		consumer: consumer,
		recovery: recovery,
		drainer:  drainer,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "supervisor")),
		state:    StateInit,
	}
}

// State returns the Supervisor's current run state.
func (s *Supervisor) State() State {
	return s.state
}

func (s *Supervisor) setState(ctx context.Context, st State) {
	s.state = st
	s.logger.InfoContext(ctx, "state transition", slog.String("state", string(st)))
}

// Run authenticates both accounts, performs a cold-start recovery pass, then
// runs the Stream Consumer until ctx is cancelled or a fatal error occurs.
// A context cancellation during the consumer's run is treated as a request
// to drain: Run waits up to cfg.DrainTimeout for in-flight work before
// returning.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setState(ctx, StateAuthenticating)
	if err := s.authenticate(ctx); err != nil {
		return fmt.Errorf("supervisor: authentication failed: %w", err)
	}

	s.setState(ctx, StateConnecting)
	if err := s.recovery.Run(ctx); err != nil {
		return fmt.Errorf("supervisor: cold-start recovery failed: %w", err)
	}

	s.setState(ctx, StateReady)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.consumer.Run(gctx)
		if gctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("stream consumer: %w", err)
	})
	if s.archiver != nil && s.cfg.ArchiveAfter > 0 {
		g.Go(func() error {
			s.runArchival(gctx)
			return nil
		})
	}

	err := g.Wait()

	s.setState(context.Background(), StateDraining)
	s.drain(context.Background())
	s.setState(context.Background(), StateStopped)

	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// authenticate verifies both accounts' credentials by fetching their fund
// limits; a failure here is always fatal since the process cannot safely
// proceed without knowing both accounts are reachable.
func (s *Supervisor) authenticate(ctx context.Context) error {
	if _, err := s.leader.GetFunds(ctx, domain.AccountLeader); err != nil {
		return fmt.Errorf("leader: %w", err)
	}
	if _, err := s.follower.GetFunds(ctx, domain.AccountFollower); err != nil {
		return fmt.Errorf("follower: %w", err)
	}
	return nil
}

// drain waits up to cfg.DrainTimeout for in-flight Handle calls to finish,
// returning as soon as they do rather than always sleeping the full window.
// Without a drainer (e.g. in tests that don't wire one) it falls back to a
// fixed sleep, since there is then no way to observe in-flight work.
func (s *Supervisor) drain(ctx context.Context) {
	timeout := s.cfg.DrainTimeout
	if timeout <= 0 {
		return
	}
	if s.drainer == nil {
		time.Sleep(timeout)
		return
	}

	drainCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.drainer.Wait(drainCtx); err != nil {
		s.logger.WarnContext(ctx, "drain timed out with work still in flight",
			slog.String("error", err.Error()))
	}
}

// runArchival periodically copies orders, events, and audit rows older than
// cfg.ArchiveAfter to cold storage via the Archiver, running once
// immediately and then on archiveCheckInterval until ctx is done. Archival
// failures are logged and retried on the next tick rather than treated as
// fatal, since a cold-storage outage must never interrupt replication.
func (s *Supervisor) runArchival(ctx context.Context) {
	s.archiveOnce(ctx)

	ticker := time.NewTicker(archiveCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.archiveOnce(ctx)
		}
	}
}

func (s *Supervisor) archiveOnce(ctx context.Context) {
	before := time.Now().UTC().Add(-s.cfg.ArchiveAfter)

	if n, err := s.archiver.ArchiveOrders(ctx, before); err != nil {
		s.logger.ErrorContext(ctx, "archive orders failed", slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.InfoContext(ctx, "archived orders", slog.Int64("count", n))
	}

	if n, err := s.archiver.ArchiveEvents(ctx, before); err != nil {
		s.logger.ErrorContext(ctx, "archive events failed", slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.InfoContext(ctx, "archived events", slog.Int64("count", n))
	}

	if n, err := s.archiver.ArchiveAudit(ctx, before); err != nil {
		s.logger.ErrorContext(ctx, "archive audit log failed", slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.InfoContext(ctx, "archived audit log rows", slog.Int64("count", n))
	}
}
