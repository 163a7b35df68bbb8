package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rl1809/half-order/internal/port"
)

const lockKey = "halforder:sweep"

// Expirer is the engine operation the sweeper drives.
type Expirer interface {
	ExpireSweep(ctx context.Context) (int, error)
}

// Sweeper expires stale sessions on a fixed interval. With a Locker set,
// only the instance holding the leader lock sweeps on a given tick.
type Sweeper struct {
	expirer  Expirer
	locker   port.Locker
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(expirer Expirer, locker port.Locker, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		expirer:  expirer,
		locker:   locker,
		interval: interval,
		logger:   logger.With("component", "sweeper"),
	}
}

// Start runs one sweep immediately and then one per interval until Stop
// is called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
	s.logger.Info("sweeper started", "interval", s.interval)
}

func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep and returns the number of sessions it
// expired. Errors are logged; the next tick retries.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	if s.locker != nil {
		token, ok, err := s.locker.AcquireLock(ctx, lockKey, s.interval)
		switch {
		case err != nil:
			s.logger.Warn("leader lock unavailable, sweeping anyway", "error", err)
		case !ok:
			s.logger.Debug("another instance holds the sweep lock")
			return 0
		default:
			defer func() {
				if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
					s.logger.Warn("release sweep lock", "error", err)
				}
			}()
		}
	}

	n, err := s.expirer.ExpireSweep(ctx)
	if err != nil {
		s.logger.Error("expiry sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		s.logger.Info("expired stale sessions", "count", n)
	}
	return n
}
