// Package workspace holds the application state a client interacts with: the current
// view, the note being viewed, summarize progress and the search query.
package workspace

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
	"github.com/MarcoPoloResearchLab/lumina/internal/search"
)

var (
	// ErrSummaryInProgress indicates that a summary is already being generated for the note.
	ErrSummaryInProgress = errors.New("workspace: summary already in progress")

	errMissingNotes = errors.New("workspace: notes service is required")
)

// NoteService is the lifecycle surface the workspace drives.
type NoteService interface {
	Notes() []notes.Note
	Get(id notes.NoteID) (notes.Note, bool)
	Create(ctx context.Context, draft notes.NoteDraft) (notes.Note, error)
	Edit(ctx context.Context, id notes.NoteID, draft notes.NoteDraft) (notes.Note, error)
	Trash(ctx context.Context, id notes.NoteID) (notes.Note, error)
	Restore(ctx context.Context, id notes.NoteID) (notes.Note, error)
	Archive(ctx context.Context, id notes.NoteID) (notes.Note, error)
	PermanentDelete(ctx context.Context, id notes.NoteID) error
	Summarize(ctx context.Context, id notes.NoteID) (notes.Note, error)
	AddListener(listener notes.ChangeListener)
}

// SearchController receives query changes and exposes the latest search state.
type SearchController interface {
	SetQuery(query string, mode notes.SearchMode)
	Refresh()
	Snapshot() search.Snapshot
}

// Config wires a Workspace. Search may be nil when semantic search is unavailable.
type Config struct {
	Notes  NoteService
	Search SearchController
	Logger *zap.Logger
}

// DisplayState is everything a client needs to render the note list.
type DisplayState struct {
	View        notes.View              `json:"view"`
	Query       string                  `json:"query"`
	Mode        notes.SearchMode        `json:"mode"`
	Notes       []notes.Note            `json:"notes"`
	Loading     bool                    `json:"loading"`
	Empty       bool                    `json:"empty"`
	Reasons     map[notes.NoteID]string `json:"reasons,omitempty"`
	Counts      map[notes.View]int      `json:"counts"`
	Viewing     notes.NoteID            `json:"viewing,omitempty"`
	Summarizing []notes.NoteID          `json:"summarizing"`
}

// Workspace routes user actions to the notes service and search dispatcher.
type Workspace struct {
	notes  NoteService
	search SearchController
	logger *zap.Logger

	mu          sync.Mutex
	view        notes.View
	viewing     notes.NoteID
	summarizing map[notes.NoteID]struct{}
	query       string
	mode        notes.SearchMode
}

// New constructs a Workspace on the active view.
func New(cfg Config) (*Workspace, error) {
	if cfg.Notes == nil {
		return nil, errMissingNotes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workspace := &Workspace{
		notes:       cfg.Notes,
		search:      cfg.Search,
		logger:      logger,
		view:        notes.ViewActive,
		summarizing: make(map[notes.NoteID]struct{}),
		mode:        notes.SearchModeKeyword,
	}
	cfg.Notes.AddListener(workspace.handleChange)
	return workspace, nil
}

func (w *Workspace) CreateNote(ctx context.Context, draft notes.NoteDraft) (notes.Note, error) {
	return w.notes.Create(ctx, draft)
}

func (w *Workspace) EditNote(ctx context.Context, id notes.NoteID, draft notes.NoteDraft) (notes.Note, error) {
	return w.notes.Edit(ctx, id, draft)
}

func (w *Workspace) TrashNote(ctx context.Context, id notes.NoteID) (notes.Note, error) {
	return w.notes.Trash(ctx, id)
}

func (w *Workspace) RestoreNote(ctx context.Context, id notes.NoteID) (notes.Note, error) {
	return w.notes.Restore(ctx, id)
}

func (w *Workspace) ArchiveNote(ctx context.Context, id notes.NoteID) (notes.Note, error) {
	return w.notes.Archive(ctx, id)
}

func (w *Workspace) PermanentDeleteNote(ctx context.Context, id notes.NoteID) error {
	return w.notes.PermanentDelete(ctx, id)
}

// SummarizeNote awaits a summary for the note. The in-progress marker is cleared whatever the outcome.
func (w *Workspace) SummarizeNote(ctx context.Context, id notes.NoteID) (notes.Note, error) {
	w.mu.Lock()
	if _, running := w.summarizing[id]; running {
		w.mu.Unlock()
		return notes.Note{}, ErrSummaryInProgress
	}
	w.summarizing[id] = struct{}{}
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.summarizing, id)
		w.mu.Unlock()
	}()
	return w.notes.Summarize(ctx, id)
}

// ViewNote opens the note in the detail viewer.
func (w *Workspace) ViewNote(id notes.NoteID) (notes.Note, error) {
	note, ok := w.notes.Get(id)
	if !ok {
		return notes.Note{}, notes.ErrNoteNotFound
	}
	w.mu.Lock()
	w.viewing = id
	w.mu.Unlock()
	return note, nil
}

// CloseViewer dismisses the detail viewer.
func (w *Workspace) CloseViewer() {
	w.mu.Lock()
	w.viewing = ""
	w.mu.Unlock()
}

// SetView switches the displayed partition.
func (w *Workspace) SetView(view notes.View) {
	w.mu.Lock()
	w.view = view
	w.mu.Unlock()
}

// SetSearch records the query and mode; semantic queries are debounced by the search controller.
func (w *Workspace) SetSearch(query string, mode notes.SearchMode) {
	w.mu.Lock()
	w.query = query
	w.mode = mode
	w.mu.Unlock()
	if w.search != nil {
		w.search.SetQuery(query, mode)
	}
}

// SearchState reports the current query, mode and semantic search progress.
func (w *Workspace) SearchState() search.Snapshot {
	if w.search != nil {
		return w.search.Snapshot()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return search.Snapshot{Query: w.query, Mode: w.mode, Results: []notes.SearchResult{}}
}

// Display derives the list for the current view and search state.
func (w *Workspace) Display() DisplayState {
	all := w.notes.Notes()

	w.mu.Lock()
	view := w.view
	viewing := w.viewing
	query := w.query
	mode := w.mode
	summarizing := make([]notes.NoteID, 0, len(w.summarizing))
	for id := range w.summarizing {
		summarizing = append(summarizing, id)
	}
	w.mu.Unlock()
	sort.Slice(summarizing, func(i, j int) bool { return summarizing[i] < summarizing[j] })

	var snapshot search.Snapshot
	if w.search != nil {
		snapshot = w.search.Snapshot()
		query = snapshot.Query
		mode = snapshot.Mode
	}

	semantic := mode == notes.SearchModeSemantic && strings.TrimSpace(query) != ""
	displayed := notes.Display(all, notes.DisplayQuery{
		View:           view,
		Query:          query,
		Mode:           mode,
		Results:        snapshot.Results,
		SearchInFlight: snapshot.InFlight,
	})

	state := DisplayState{
		View:        view,
		Query:       query,
		Mode:        mode,
		Notes:       displayed,
		Loading:     semantic && snapshot.InFlight,
		Counts:      notes.CountByView(all),
		Viewing:     viewing,
		Summarizing: summarizing,
	}
	state.Empty = len(displayed) == 0 && !state.Loading
	if semantic {
		state.Reasons = notes.Reasons(snapshot.Results)
	}
	return state
}

// handleChange keeps semantic results in step with the note set and closes the viewer
// when its note leaves the active view.
func (w *Workspace) handleChange(change notes.Change) {
	if w.search != nil {
		w.search.Refresh()
	}
	if change.Dismissed == "" {
		return
	}
	w.mu.Lock()
	dismissed := w.viewing == change.Dismissed
	if dismissed {
		w.viewing = ""
	}
	w.mu.Unlock()
	if dismissed {
		w.logger.Debug("viewer dismissed", zap.String("note_id", change.Dismissed.String()), zap.String("command", change.Command))
	}
}
