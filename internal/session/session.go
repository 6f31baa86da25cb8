/*
Package session
File: session.go
Description:
    The driver that owns one economy State for the life of a play session.

    The economy engine is single-threaded by contract, so every engine call
    made here happens under one mutex (acquire, call, release on every exit
    path). Wall-clock sampling also happens under that mutex, which gives
    ticks, manual actions and purchases a single total order.
*/

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/everforgeworks/moai-clicker/internal/game"
	"github.com/everforgeworks/moai-clicker/internal/platform/logger"
	"github.com/everforgeworks/moai-clicker/internal/platform/metrics"
)

// SystemActor is the actor name used for heartbeat-driven changes.
const SystemActor = "SYSTEM"

// Publisher receives periodic state pulses from Run.
type Publisher interface {
	PublishState(snap game.Snapshot)
}

// Session serializes access to a single economy State.
type Session struct {
	ID string

	mu      sync.Mutex
	st      *game.State
	sampler Sampler
	clk     Clock

	log     *logger.Logger
	metrics *metrics.Collector
}

// New creates a session over a fresh State for the catalog.
func New(cat *game.Catalog, clk Clock, log *logger.Logger, m *metrics.Collector) *Session {
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Session{
		ID:      uuid.NewString(),
		st:      game.NewState(cat),
		clk:     clk,
		log:     log,
		metrics: m,
	}
}

// Catalog returns the session's read-only catalog.
func (s *Session) Catalog() *game.Catalog {
	return s.st.Catalog()
}

// Snapshot returns a detached copy of the current state.
func (s *Session) Snapshot() game.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Snapshot()
}

// Tick samples the clock and integrates the elapsed time since the previous sample.
// A clock regression is reported as game.ErrInvalidInput and never reduces the balance.
func (s *Session) Tick() (game.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delta := s.sampler.Delta(s.clk.Now())
	ev, err := game.ApplyElapsedTime(s.st, delta)
	s.metrics.Ticks.Add(1)
	if err != nil {
		s.metrics.TickErrors.Add(1)
		s.log.Warnf("tick rejected, re-anchoring clock: %v", err)
		return ev, err
	}
	return ev, nil
}

// Advance integrates an explicit number of seconds without reading the clock.
func (s *Session) Advance(actor string, seconds float64) (game.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := game.ApplyElapsedTime(s.st, seconds)
	if err != nil {
		s.metrics.RejectedInput.Add(1)
		s.log.Warnf("advance by %s rejected: %v", actor, err)
		return ev, err
	}
	s.log.Debugf("advance by %s: %vs, +%s", actor, seconds, humanize.Commaf(ev.Delta))
	return ev, nil
}

// Click applies one manual action of the given amount.
func (s *Session) Click(actor string, amount float64) (game.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := game.ApplyManualAction(s.st, amount)
	if err != nil {
		s.metrics.RejectedInput.Add(1)
		s.log.Warnf("manual action by %s rejected: %v", actor, err)
		return ev, err
	}
	s.metrics.ManualActions.Add(1)
	s.log.Debugf("manual action by %s, clicks=%d", actor, s.st.Clicks())
	return ev, nil
}

// Buy purchases one unit of kindID.
func (s *Session) Buy(actor, kindID string) (game.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := game.Purchase(s.st, kindID)
	switch {
	case err == nil:
		s.metrics.Purchases.Add(1)
		s.log.Event("PURCHASE", actor, fmt.Sprintf("kind=%s paid=%s owned=%d rate=%s/s",
			kindID, humanize.Commaf(-ev.Delta), s.st.Owned(kindID), humanize.Commaf(s.st.ProductionRate())))
	case errors.Is(err, game.ErrInsufficientFunds):
		s.metrics.RejectedFunds.Add(1)
		s.log.Debugf("purchase by %s rejected: %v", actor, err)
	case errors.Is(err, game.ErrUnknownKind):
		s.metrics.RejectedKind.Add(1)
		s.log.Warnf("purchase by %s rejected: %v", actor, err)
	default:
		s.log.Errorf("purchase by %s failed: %v", actor, err)
	}
	return ev, err
}

// Run samples the clock every interval until ctx is done. Every
// broadcastEvery ticks the current snapshot is handed to pub (if non-nil).
// It blocks, so it must be run in a goroutine.
func (s *Session) Run(ctx context.Context, interval time.Duration, broadcastEvery int, pub Publisher) {
	s.log.Infof("Heartbeat started: session=%s interval=%v", s.ID, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Prime the sampler so the first interval is measured from now.
	s.Tick()

	var n int
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Heartbeat stopped by context.")
			return
		case <-ticker.C:
			s.Tick()
			n++
			if pub != nil && broadcastEvery > 0 && n%broadcastEvery == 0 {
				pub.PublishState(s.Snapshot())
			}
		}
	}
}
