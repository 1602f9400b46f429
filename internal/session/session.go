// Package session owns one inventory mirror and its sync manager and exposes
// the operations the rendering surface calls.
package session

import (
	"context"
	stdErrors "errors"
	"time"

	apperrors "github.com/fairyhunter13/pantry-pilot/internal/errors"
	"github.com/fairyhunter13/pantry-pilot/internal/mirror"
	"github.com/fairyhunter13/pantry-pilot/internal/model"
	"github.com/fairyhunter13/pantry-pilot/internal/obs"
	"github.com/fairyhunter13/pantry-pilot/internal/remote"
	"github.com/fairyhunter13/pantry-pilot/internal/syncer"
)

// Mutation labels used in logs and metrics.
const (
	OpIncrement = "increment"
	OpDecrement = "decrement"
	OpAdd       = "add"
)

// Config wires a Session.
type Config struct {
	Policy       string
	StoreTimeout time.Duration
	Metrics      *obs.SyncMetrics
	Logger       *obs.Logger
	Now          func() time.Time
}

// Options lists what the filter pickers can show.
type Options struct {
	Locations       []string `json:"locations"`
	Categories      []string `json:"categories"`
	DefaultLocation string   `json:"default_location"`
	DefaultCategory string   `json:"default_category"`
}

// RowView is one row as the item list shows it.
type RowView struct {
	Index          int    `json:"index"`
	ItemName       string `json:"item_name"`
	ItemQuantity   int    `json:"item_quantity"`
	Note           string `json:"note,omitempty"`
	LastAddDate    string `json:"last_add_date,omitempty"`
	LastRemoveDate string `json:"last_remove_date,omitempty"`
}

// Outcome is the result of a mutation request.
type Outcome struct {
	Index      int                 `json:"index"`
	Item       model.InventoryItem `json:"item"`
	Changed    bool                `json:"changed"`
	Dirty      bool                `json:"dirty"`
	Generation string              `json:"generation"`
}

// Session is the explicit per-user state: one mirror, one sync manager.
type Session struct {
	mirror  *mirror.Mirror
	sync    *syncer.Manager
	metrics *obs.SyncMetrics
	logg    *obs.Logger
	timeout time.Duration
}

// New builds an unloaded session over st. Call Open before anything else.
func New(st remote.Store, cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = obs.Nop()
	}
	var mopts []mirror.Option
	if cfg.Now != nil {
		mopts = append(mopts, mirror.WithClock(cfg.Now))
	}
	mir := mirror.New(mopts...)
	return &Session{
		mirror: mir,
		sync: syncer.NewManager(mir, st, syncer.Options{
			Policy:       cfg.Policy,
			StoreTimeout: cfg.StoreTimeout,
			Metrics:      cfg.Metrics,
			Logger:       cfg.Logger,
			Now:          cfg.Now,
		}),
		metrics: cfg.Metrics,
		logg:    cfg.Logger,
		timeout: cfg.StoreTimeout,
	}
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Open loads the mirror from the store. On error the session stays unloaded.
func (s *Session) Open(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.sync.Reload(ctx)
}

// Start launches background flushing when the policy asks for it.
func (s *Session) Start(ctx context.Context) { s.sync.Start(ctx) }

// Drain waits for background flushing to catch up with local changes. It
// reports false when ctx ends first.
func (s *Session) Drain(ctx context.Context) bool { return s.sync.DrainUntil(ctx) }

// Stop halts background flushing and waits for it to exit.
func (s *Session) Stop() {
	s.sync.Stop()
	s.sync.Wait()
}

func (s *Session) requireLoaded() error {
	if !s.mirror.Loaded() {
		return apperrors.New(apperrors.CodeNotLoaded, "inventory has not been loaded")
	}
	return nil
}

// Generation identifies the loaded table. Row indexes are only valid for it.
func (s *Session) Generation() string { return s.mirror.Generation() }

// FilterOptions returns every location, every category across the whole
// table and the default selection.
func (s *Session) FilterOptions() (Options, error) {
	if err := s.requireLoaded(); err != nil {
		return Options{}, err
	}
	loc, cat := s.defaultSelection()
	return Options{
		Locations:       s.mirror.DistinctLocations(),
		Categories:      s.mirror.DistinctCategories(mirror.Global()),
		DefaultLocation: loc,
		DefaultCategory: cat,
	}, nil
}

// CategoriesFor returns the categories present in location.
func (s *Session) CategoriesFor(location string) ([]string, error) {
	if err := s.requireLoaded(); err != nil {
		return nil, err
	}
	return s.mirror.DistinctCategories(mirror.WithinLocation(location)), nil
}

// DefaultSelection is the first location and the first category within it.
func (s *Session) DefaultSelection() (location, category string, err error) {
	if err := s.requireLoaded(); err != nil {
		return "", "", err
	}
	location, category = s.defaultSelection()
	return location, category, nil
}

func (s *Session) defaultSelection() (string, string) {
	locs := s.mirror.DistinctLocations()
	if len(locs) == 0 {
		return "", ""
	}
	cats := s.mirror.DistinctCategories(mirror.WithinLocation(locs[0]))
	if len(cats) == 0 {
		return locs[0], ""
	}
	return locs[0], cats[0]
}

// Rows lists the rows of one location and category.
func (s *Session) Rows(location, category string) ([]RowView, error) {
	if err := s.requireLoaded(); err != nil {
		return nil, err
	}
	rows := s.mirror.Filter(location, category)
	out := make([]RowView, 0, len(rows))
	for _, r := range rows {
		out = append(out, RowView{
			Index:          r.Index,
			ItemName:       r.Item.ItemName,
			ItemQuantity:   r.Item.ItemQuantity,
			Note:           r.Item.Note,
			LastAddDate:    r.Item.LastAddDate,
			LastRemoveDate: r.Item.LastRemoveDate,
		})
	}
	return out, nil
}

// RequestIncrement adds one to the row at index. When gen is set it must
// name the current generation, otherwise the request is a CONFLICT.
func (s *Session) RequestIncrement(ctx context.Context, gen string, index int) (Outcome, error) {
	if err := s.requireLoaded(); err != nil {
		return Outcome{}, err
	}
	item, err := s.mirror.IncrementIn(gen, index)
	if err != nil {
		return Outcome{}, translate(err)
	}
	return s.mutated(ctx, OpIncrement, index, item, true), nil
}

// RequestDecrement removes one from the row at index. At zero nothing
// changes and Outcome.Changed is false. gen is checked as in RequestIncrement.
func (s *Session) RequestDecrement(ctx context.Context, gen string, index int) (Outcome, error) {
	if err := s.requireLoaded(); err != nil {
		return Outcome{}, err
	}
	item, changed, err := s.mirror.DecrementIn(gen, index)
	if err != nil {
		return Outcome{}, translate(err)
	}
	return s.mutated(ctx, OpDecrement, index, item, changed), nil
}

// RequestAdd appends a new row.
func (s *Session) RequestAdd(ctx context.Context, n mirror.NewItem) (Outcome, error) {
	if err := s.requireLoaded(); err != nil {
		return Outcome{}, err
	}
	index, err := s.mirror.AddItem(n)
	if err != nil {
		return Outcome{}, translate(err)
	}
	item, err := s.mirror.Item(index)
	if err != nil {
		return Outcome{}, translate(err)
	}
	return s.mutated(ctx, OpAdd, index, item, true), nil
}

func (s *Session) mutated(ctx context.Context, op string, index int, item model.InventoryItem, changed bool) Outcome {
	out := Outcome{
		Index:      index,
		Item:       item,
		Changed:    changed,
		Dirty:      s.mirror.Dirty(),
		Generation: s.mirror.Generation(),
	}
	if !changed {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{"op": op, "index": index}), "mutation_noop")
		return out
	}
	s.metrics.IncMutation(op)
	s.metrics.SetPending(s.mirror.Pending())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"op":       op,
		"index":    index,
		"item":     item.ItemName,
		"quantity": item.ItemQuantity,
	}), "mutation_applied")
	s.sync.Notify()
	return out
}

// Sync flushes the mirror now.
func (s *Session) Sync(ctx context.Context) (syncer.FlushResult, error) {
	if err := s.requireLoaded(); err != nil {
		return syncer.FlushResult{}, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.sync.Flush(ctx)
}

// Reload discards local changes and reads the store again. It also serves
// as a retry for a failed Open.
func (s *Session) Reload(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.sync.Reload(ctx)
}

// Status reports the sync state. It is available before Open.
func (s *Session) Status() syncer.Status { return s.sync.Status() }

// Dirty reports whether there are unflushed changes.
func (s *Session) Dirty() bool { return s.mirror.Dirty() }

// translate maps mirror errors to typed errors.
func translate(err error) error {
	var idxErr *mirror.IndexError
	if stdErrors.As(err, &idxErr) {
		return apperrors.Wrap(apperrors.CodeNotFound, err, "no item at that position").
			WithDetails(map[string]any{"index": idxErr.Index, "rows": idxErr.Len})
	}
	var genErr *mirror.GenerationError
	if stdErrors.As(err, &genErr) {
		return apperrors.Wrap(apperrors.CodeConflict, err, "inventory was reloaded since the rows were listed").
			WithDetails(map[string]any{"expected": genErr.Expected, "current": genErr.Current})
	}
	if stdErrors.Is(err, mirror.ErrQuantityLimit) {
		return apperrors.Wrap(apperrors.CodeValidation, err, "quantity is at its maximum").
			WithDetails(map[string]any{"fields": map[string]string{model.ColItemQuantity: "is at its maximum"}})
	}
	var valErr *mirror.ValidationError
	if stdErrors.As(err, &valErr) {
		return apperrors.Wrap(apperrors.CodeValidation, err, valErr.Error()).
			WithDetails(map[string]any{"fields": valErr.Fields})
	}
	if apperrors.As(err) != nil {
		return err
	}
	return apperrors.Wrap(apperrors.CodeInternal, err, "unexpected inventory error")
}
