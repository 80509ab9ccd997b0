package breakglass

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wisbric/wopr/internal/telemetry"
)

const sweepInterval = time.Minute

// Sweeper runs the background task that expires stale breakglass sessions
// once a minute, mirroring the analysis engine's idempotent
// start/stop-via-channel scheduler shape.
type Sweeper struct {
	store  *Store
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	stopOnce chan struct{}
	doneCh   chan struct{}
}

// NewSweeper builds a Sweeper.
func NewSweeper(store *Store, logger *slog.Logger) *Sweeper {
	return &Sweeper{store: store, logger: logger}
}

// Start launches the sweeper goroutine. Calling Start twice is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopOnce = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.loop(ctx, s.stopOnce, s.doneCh)
}

// Stop halts the sweeper goroutine. Idempotent.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopOnce)
	done := s.doneCh
	s.mu.Unlock()
	<-done
}

func (s *Sweeper) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	count, err := s.store.ExpireStale(ctx, time.Now())
	if err != nil {
		s.logger.Error("sweeping breakglass sessions", "error", err)
		return
	}
	if count > 0 {
		s.logger.Info("expired stale breakglass sessions", "count", count)
	}

	active, err := s.store.CountActive(ctx)
	if err != nil {
		s.logger.Warn("counting active breakglass sessions", "error", err)
		return
	}
	telemetry.BreakglassSessionsActive.Set(float64(active))
}
