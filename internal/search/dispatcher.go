// Package search decides when note queries reach the semantic search capability.
package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
)

const (
	// DefaultDebounce is the quiet period after the last query change before a semantic search is dispatched.
	DefaultDebounce       = 500 * time.Millisecond
	defaultSearchTimeout  = 30 * time.Second
	operationSemanticCall = "search.semantic"
)

var (
	errMissingSearcher    = errors.New("search: searcher is required")
	errMissingNotesSource = errors.New("search: notes source is required")
)

// Searcher ranks candidate notes by conceptual relevance to the query.
type Searcher interface {
	SemanticSearch(ctx context.Context, query string, candidates []notes.Note) ([]notes.SearchResult, error)
}

// NotesSource supplies the full note set at dispatch time.
type NotesSource func() []notes.Note

// Snapshot is the observable dispatcher state.
type Snapshot struct {
	Query    string               `json:"query"`
	Mode     notes.SearchMode     `json:"mode"`
	Results  []notes.SearchResult `json:"results"`
	InFlight bool                 `json:"inFlight"`
}

// Listener receives the state after every change.
type Listener func(Snapshot)

// Config wires a Dispatcher.
type Config struct {
	Searcher Searcher
	Notes    NotesSource
	Debounce time.Duration
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Dispatcher coalesces rapid query changes into at most one semantic search per
// debounce window. Every query change bumps a sequence number; completions that
// belong to an older sequence are dropped.
type Dispatcher struct {
	searcher Searcher
	notes    NotesSource
	debounce time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	mu             sync.Mutex
	query          string
	mode           notes.SearchMode
	results        []notes.SearchResult
	inFlight       bool
	sequence       uint64
	timer          *time.Timer
	cancelInFlight context.CancelFunc
	closed         bool

	listenersMu sync.RWMutex
	listeners   []Listener
}

// NewDispatcher validates the configuration and returns an idle dispatcher in keyword mode.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Searcher == nil {
		return nil, errMissingSearcher
	}
	if cfg.Notes == nil {
		return nil, errMissingNotesSource
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSearchTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		searcher: cfg.Searcher,
		notes:    cfg.Notes,
		debounce: debounce,
		timeout:  timeout,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		mode:     notes.SearchModeKeyword,
		results:  []notes.SearchResult{},
	}, nil
}

// AddListener registers a callback for state changes.
func (d *Dispatcher) AddListener(listener Listener) {
	if listener == nil {
		return
	}
	d.listenersMu.Lock()
	d.listeners = append(d.listeners, listener)
	d.listenersMu.Unlock()
}

// SetQuery records a query change. Keyword mode and blank queries clear results without
// calling the searcher; a non-blank semantic query (re)arms the debounce timer.
func (d *Dispatcher) SetQuery(query string, mode notes.SearchMode) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.query = query
	d.mode = mode
	d.sequence++
	d.stopPendingLocked()
	d.stopInFlightLocked()

	if semanticQuery(query, mode) {
		d.armLocked()
	} else {
		d.results = []notes.SearchResult{}
	}
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	d.notify(snapshot)
}

// Refresh re-runs the current semantic query after the note set changed. It restarts
// the debounce window and supersedes any running search; previous results stay visible
// until the new ones arrive. Keyword mode and blank queries are left untouched.
func (d *Dispatcher) Refresh() {
	d.mu.Lock()
	if d.closed || !semanticQuery(d.query, d.mode) {
		d.mu.Unlock()
		return
	}
	d.sequence++
	d.stopPendingLocked()
	d.stopInFlightLocked()
	d.armLocked()
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	d.notify(snapshot)
}

func semanticQuery(query string, mode notes.SearchMode) bool {
	return mode == notes.SearchModeSemantic && strings.TrimSpace(query) != ""
}

// armLocked schedules a dispatch of the current query for the current sequence.
func (d *Dispatcher) armLocked() {
	sequence := d.sequence
	query := d.query
	d.tasks.Add(1)
	d.timer = time.AfterFunc(d.debounce, func() {
		defer d.tasks.Done()
		d.dispatch(sequence, query)
	})
}

// Snapshot returns a copy of the current state.
func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Wait blocks until no debounce timer is pending and no search is running.
func (d *Dispatcher) Wait() {
	d.tasks.Wait()
}

// Close cancels the pending timer and any running search. No dispatch happens afterwards.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.sequence++
	d.stopPendingLocked()
	d.stopInFlightLocked()
	d.mu.Unlock()

	d.cancel()
	d.tasks.Wait()
}

func (d *Dispatcher) dispatch(sequence uint64, query string) {
	d.mu.Lock()
	if d.closed || sequence != d.sequence {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()
	d.inFlight = true
	d.cancelInFlight = cancel
	snapshot := d.snapshotLocked()
	d.mu.Unlock()
	d.notify(snapshot)

	candidates := d.notes()
	results, err := d.searcher.SemanticSearch(ctx, query, candidates)

	d.mu.Lock()
	if sequence != d.sequence {
		d.mu.Unlock()
		d.logger.Debug("discarded superseded semantic search",
			zap.String("operation", operationSemanticCall),
			zap.Uint64("sequence", sequence))
		return
	}
	if err != nil {
		d.logger.Warn("semantic search failed",
			zap.String("operation", operationSemanticCall),
			zap.Int("candidates", len(candidates)),
			zap.Error(err))
	} else {
		d.results = append([]notes.SearchResult{}, results...)
	}
	d.inFlight = false
	d.cancelInFlight = nil
	snapshot = d.snapshotLocked()
	d.mu.Unlock()

	d.notify(snapshot)
}

func (d *Dispatcher) stopPendingLocked() {
	if d.timer == nil {
		return
	}
	if d.timer.Stop() {
		d.tasks.Done()
	}
	d.timer = nil
}

// stopInFlightLocked abandons the running search; its completion no longer matches the sequence.
func (d *Dispatcher) stopInFlightLocked() {
	if d.cancelInFlight != nil {
		d.cancelInFlight()
		d.cancelInFlight = nil
	}
	d.inFlight = false
}

func (d *Dispatcher) snapshotLocked() Snapshot {
	return Snapshot{
		Query:    d.query,
		Mode:     d.mode,
		Results:  append([]notes.SearchResult{}, d.results...),
		InFlight: d.inFlight,
	}
}

func (d *Dispatcher) notify(snapshot Snapshot) {
	d.listenersMu.RLock()
	listeners := append([]Listener(nil), d.listeners...)
	d.listenersMu.RUnlock()
	for _, listener := range listeners {
		listener(snapshot)
	}
}
