package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dukerupert/clinicdesk/internal/model"
)

// Supervisor keeps at most one Poller running, keyed by the owner it polls
// for. Syncing to a new owner stops the old poller, dropping its snapshot, and
// starts a fresh one; syncing to "" stops polling altogether.
type Supervisor struct {
	fetcher Fetcher
	cfg     Config
	logger  zerolog.Logger

	mu       sync.Mutex
	owner    string
	cur      *Poller
	closed   bool
	onUpdate func(model.QueueSnapshot)

	// retired counts stopped pollers whose requests are still unwinding.
	retired sync.WaitGroup
}

func NewSupervisor(fetcher Fetcher, cfg Config, logger zerolog.Logger) *Supervisor {
	return &Supervisor{fetcher: fetcher, cfg: cfg, logger: logger}
}

// OnUpdate registers fn for snapshots applied by any poller started after
// the call.
func (s *Supervisor) OnUpdate(fn func(model.QueueSnapshot)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// Sync makes the running poller match owner. ctx bounds the poller's life.
func (s *Supervisor) Sync(ctx context.Context, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner == s.owner || s.closed {
		return
	}
	s.retireLocked()
	s.owner = owner
	if owner == "" {
		return
	}

	p := NewPoller(s.fetcher, s.cfg, s.logger)
	p.OnUpdate(s.onUpdate)
	p.Start(ctx)
	s.cur = p
	s.logger.Debug().Dur("interval", p.cfg.Interval).Msg("queue polling started")
}

// Stop stops the running poller and waits until every poller the supervisor
// ran has finished its in-flight requests. Sync starts nothing afterwards.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.closed = true
	s.owner = ""
	s.retireLocked()
	s.mu.Unlock()

	s.retired.Wait()
}

// retireLocked stops the running poller without waiting for it, since Sync
// may run inside one of its requests (a 401 ends the session).
func (s *Supervisor) retireLocked() {
	if s.cur == nil {
		return
	}
	old := s.cur
	s.cur = nil
	old.Stop()
	s.retired.Add(1)
	go func() {
		defer s.retired.Done()
		old.Wait()
	}()
	s.logger.Debug().Msg("queue polling stopped")
}

func (s *Supervisor) current() *Poller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Refresh refreshes the running poller. It returns ErrStopped when nothing
// is polling.
func (s *Supervisor) Refresh(ctx context.Context) error {
	p := s.current()
	if p == nil {
		return ErrStopped
	}
	return p.Refresh(ctx)
}

// Fetch issues a fresh request on the running poller.
func (s *Supervisor) Fetch(ctx context.Context) error {
	p := s.current()
	if p == nil {
		return ErrStopped
	}
	return p.Fetch(ctx)
}

func (s *Supervisor) Snapshot() (model.QueueSnapshot, bool) {
	p := s.current()
	if p == nil {
		return model.QueueSnapshot{}, false
	}
	return p.Snapshot()
}

func (s *Supervisor) Refreshing() bool {
	p := s.current()
	return p != nil && p.Refreshing()
}
