// Package syncer decides when the inventory mirror is written back to the
// remote table and refuses writes that would wipe it.
package syncer

import (
	"context"
	stdErrors "errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fairyhunter13/pantry-pilot/internal/config"
	apperrors "github.com/fairyhunter13/pantry-pilot/internal/errors"
	"github.com/fairyhunter13/pantry-pilot/internal/mirror"
	"github.com/fairyhunter13/pantry-pilot/internal/model"
	"github.com/fairyhunter13/pantry-pilot/internal/obs"
	"github.com/fairyhunter13/pantry-pilot/internal/remote"
)

// Outcome describes how a flush attempt ended.
type Outcome string

const (
	OutcomeWritten      Outcome = obs.FlushWritten
	OutcomeSkipped      Outcome = obs.FlushSkipped
	OutcomeGuardTripped Outcome = obs.FlushGuardTripped
	OutcomeFailed       Outcome = obs.FlushFailed
)

// State is the sync state derived from the mirror.
type State string

const (
	StateClean State = "clean"
	StateDirty State = "dirty"
)

// FlushResult reports a flush attempt.
type FlushResult struct {
	Outcome Outcome       `json:"outcome"`
	Seq     uint64        `json:"seq"`
	Version uint64        `json:"version"`
	Rows    int           `json:"rows"`
	Took    time.Duration `json:"took_ns"`
}

// Status is a point-in-time view of the sync manager.
type Status struct {
	State            State      `json:"state"`
	Policy           string     `json:"policy"`
	Loaded           bool       `json:"loaded"`
	PendingMutations uint64     `json:"pending_mutations"`
	InFlight         bool       `json:"in_flight"`
	LastFlushAt      *time.Time `json:"last_flush_at,omitempty"`
	LastOutcome      Outcome    `json:"last_outcome,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	Generation       string     `json:"generation,omitempty"`
	Rows             int        `json:"rows"`
}

// Options configures a Manager.
type Options struct {
	// Policy is config.PolicyManual (default) or config.PolicyEager.
	Policy string
	// StoreTimeout bounds flushes started by the eager flusher.
	StoreTimeout time.Duration
	Metrics      *obs.SyncMetrics
	Logger       *obs.Logger
	Now          func() time.Time
}

// Manager serializes flushes and reloads of one mirror against one store.
type Manager struct {
	mirror  *mirror.Mirror
	store   remote.Store
	policy  string
	timeout time.Duration
	metrics *obs.SyncMetrics
	logg    *obs.Logger
	now     func() time.Time

	// slot is held by the single flush or reload in progress.
	slot     chan struct{}
	reloads  singleflight.Group
	seq      atomic.Uint64
	inFlight atomic.Bool

	mu          sync.Mutex
	lastFlushAt time.Time
	lastOutcome Outcome
	lastErr     string

	notify chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager wires a manager for mir and st.
func NewManager(mir *mirror.Mirror, st remote.Store, opts Options) *Manager {
	if opts.Policy == "" {
		opts.Policy = config.PolicyManual
	}
	if opts.Logger == nil {
		opts.Logger = obs.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		mirror:  mir,
		store:   st,
		policy:  opts.Policy,
		timeout: opts.StoreTimeout,
		metrics: opts.Metrics,
		logg:    opts.Logger,
		now:     opts.Now,
		slot:    make(chan struct{}, 1),
		notify:  make(chan struct{}, 1),
	}
}

func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return apperrors.Wrap(apperrors.CodeConnection, ctx.Err(), "timed out waiting for the running sync")
	}
}

func (m *Manager) release() { <-m.slot }

// Flush writes the mirror to the store when it holds unflushed changes.
//
// A snapshot without rows or without the required columns is never written:
// the manager reloads from the store instead and returns a
// FLUSH_GUARD_TRIPPED error. A failed write leaves the mirror dirty and is not
// retried.
func (m *Manager) Flush(ctx context.Context) (FlushResult, error) {
	if err := m.acquire(ctx); err != nil {
		return FlushResult{Outcome: OutcomeFailed}, err
	}
	defer m.release()
	m.inFlight.Store(true)
	defer m.inFlight.Store(false)

	seq := m.seq.Add(1)
	ctx = m.logg.WithField(ctx, "flush_seq", seq)

	snap, version, dirty := m.mirror.Snapshot()
	res := FlushResult{Seq: seq, Version: version, Rows: len(snap.Rows)}
	if err := snap.Validate(); err != nil {
		res.Outcome = OutcomeGuardTripped
		return res, m.tripGuard(ctx, err)
	}
	if !dirty {
		res.Outcome = OutcomeSkipped
		m.metrics.IncFlush(obs.FlushSkipped)
		m.record(OutcomeSkipped, nil)
		m.logg.Debug(ctx, "flush_skipped_clean")
		return res, nil
	}

	start := m.now()
	err := m.store.Write(ctx, snap)
	res.Took = m.now().Sub(start)
	m.metrics.ObserveWrite(res.Took)
	if err != nil {
		res.Outcome = OutcomeFailed
		m.metrics.IncFlush(obs.FlushFailed)
		m.record(OutcomeFailed, err)
		m.logg.Error(ctx, "flush_write_failed", err)
		return res, apperrors.Wrap(apperrors.CodeConnection, err, "writing inventory failed; changes kept locally")
	}

	m.mirror.MarkSynced(version)
	res.Outcome = OutcomeWritten
	m.metrics.IncFlush(obs.FlushWritten)
	m.metrics.SetPending(m.mirror.Pending())
	m.record(OutcomeWritten, nil)
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"rows":    res.Rows,
		"version": version,
		"took_ms": res.Took.Milliseconds(),
	}), "flush_written")
	return res, nil
}

// tripGuard reloads the mirror in place of a destructive write. The slot is
// already held.
func (m *Manager) tripGuard(ctx context.Context, reason error) error {
	m.metrics.IncFlush(obs.FlushGuardTripped)
	m.logg.Warn(m.logg.WithField(ctx, "reason", reason.Error()), "flush_guard_tripped")

	details := guardDetails(reason)
	reloadErr := m.reloadLocked(ctx)
	details["reloaded"] = reloadErr == nil
	if reloadErr != nil {
		details["reload_error"] = string(apperrors.As(reloadErr).Code())
	}
	guardErr := apperrors.Wrap(apperrors.CodeFlushGuardTripped, reason, "refusing to write an empty or malformed table").
		WithDetails(details)
	m.record(OutcomeGuardTripped, guardErr)
	return guardErr
}

func guardDetails(reason error) map[string]any {
	details := map[string]any{"reason": reason.Error()}
	var missing *model.MissingColumnsError
	if stdErrors.As(reason, &missing) {
		details["missing_columns"] = missing.Columns
	}
	return details
}

// Reload replaces the mirror with a fresh read of the store, discarding local
// changes. Concurrent callers share one read.
func (m *Manager) Reload(ctx context.Context) error {
	ch := m.reloads.DoChan("reload", func() (any, error) {
		if err := m.acquire(ctx); err != nil {
			return nil, err
		}
		defer m.release()
		return nil, m.reloadLocked(ctx)
	})
	select {
	case <-ctx.Done():
		return apperrors.Wrap(apperrors.CodeConnection, ctx.Err(), "reload cancelled")
	case res := <-ch:
		return res.Err
	}
}

func (m *Manager) reloadLocked(ctx context.Context) error {
	t, err := m.store.Read(ctx)
	if err != nil {
		m.metrics.IncReload(false)
		m.logg.Error(ctx, "reload_read_failed", err)
		return apperrors.Wrap(apperrors.CodeConnection, err, "reading inventory failed")
	}
	if err := t.Validate(); err != nil {
		m.metrics.IncReload(false)
		m.logg.Warn(m.logg.WithField(ctx, "reason", err.Error()), "reload_source_rejected")
		return apperrors.Wrap(apperrors.CodeMalformedSource, err, "inventory source is empty or malformed").
			WithDetails(guardDetails(err))
	}
	if pending := m.mirror.Pending(); pending > 0 {
		m.logg.Warn(m.logg.WithField(ctx, "pending", pending), "reload_discarding_changes")
	}
	if err := m.mirror.Replace(t); err != nil {
		m.metrics.IncReload(false)
		return apperrors.Wrap(apperrors.CodeMalformedSource, err, "inventory source is empty or malformed")
	}
	m.metrics.IncReload(true)
	m.metrics.SetPending(0)
	m.logg.Info(m.logg.WithFields(ctx, map[string]any{
		"rows":       len(t.Rows),
		"generation": m.mirror.Generation(),
	}), "reload_ok")
	return nil
}

func (m *Manager) record(outcome Outcome, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOutcome = outcome
	if outcome == OutcomeWritten {
		m.lastFlushAt = m.now()
	}
	if err != nil {
		m.lastErr = err.Error()
	} else if outcome != OutcomeSkipped {
		m.lastErr = ""
	}
}

// Status reports the current sync state.
func (m *Manager) Status() Status {
	st := Status{
		State:            StateClean,
		Policy:           m.policy,
		Loaded:           m.mirror.Loaded(),
		PendingMutations: m.mirror.Pending(),
		InFlight:         m.inFlight.Load(),
		Generation:       m.mirror.Generation(),
		Rows:             m.mirror.Len(),
	}
	if m.mirror.Dirty() {
		st.State = StateDirty
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.lastFlushAt.IsZero() {
		at := m.lastFlushAt
		st.LastFlushAt = &at
	}
	st.LastOutcome = m.lastOutcome
	st.LastError = m.lastErr
	return st
}
