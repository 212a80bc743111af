package notes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	errMissingRepository = errors.New("repository is required")
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew       = "notes.service.new"
	opLoad             = "notes.load"
	opPersist          = "notes.persist"
	opCreate           = "notes.create"
	opEdit             = "notes.edit"
	opTrash            = "notes.trash"
	opRestore          = "notes.restore"
	opArchive          = "notes.archive"
	opPermanentDelete  = "notes.permanent_delete"
	opSummarize        = "notes.summarize"
	reasonNotFound     = "note_not_found"
	reasonInvalidNote  = "invalid_note"
	reasonInvalidID    = "invalid_note_id"
	reasonTransition   = "invalid_transition"
	reasonStale        = "stale_revision"
	reasonUnavailable  = "enrichment_unavailable"
	reasonEnrichment   = "enrichment_failed"
	reasonIDGeneration = "id_generation_failed"
	reasonApplyFailed  = "apply_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Repository        Repository
	Clock             func() time.Time
	IDProvider        IDProvider
	Logger            *zap.Logger
	Enricher          Enricher
	EnrichmentTimeout time.Duration
}

type IDProvider interface {
	NewID() (NoteID, error)
}

// Change describes one applied store mutation.
type Change struct {
	Command   string
	NoteIDs   []NoteID
	Dismissed NoteID
}

// ChangeListener is notified after every applied store mutation.
type ChangeListener func(change Change)

// Service is the sole owner of the note collection. All mutations run as commands
// against the current store under a single lock and are persisted before the lock is released.
type Service struct {
	mu         sync.Mutex
	store      Store
	repository Repository
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
	enrichment *enrichmentCoordinator

	listenersMu sync.RWMutex
	listeners   []ChangeListener
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Repository == nil {
		return nil, newServiceError(opServiceNew, "missing_repository", errMissingRepository)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	service := &Service{
		store:      NewStore(nil),
		repository: cfg.Repository,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}
	service.enrichment = newEnrichmentCoordinator(cfg.Enricher, service.apply, logger, cfg.EnrichmentTimeout)
	return service, nil
}

// Load replaces the in-memory store with the persisted collection. Unreadable or corrupt
// data leaves the store empty; it is never fatal.
func (s *Service) Load(ctx context.Context) int {
	loaded, err := s.repository.Load(ctx)
	if err != nil {
		s.logError(opLoad, "load_failed", err)
		loaded = nil
	}
	store := NewStore(loaded)
	if dropped := len(loaded) - store.Len(); dropped > 0 {
		s.loggerOrDefault().Warn("skipped invalid persisted notes", zap.Int("count", dropped))
	}

	s.mu.Lock()
	s.store = store
	s.mu.Unlock()

	s.loggerOrDefault().Info("notes loaded", zap.Int("count", store.Len()))
	return store.Len()
}

// AddListener registers a callback for store changes.
func (s *Service) AddListener(listener ChangeListener) {
	if listener == nil {
		return
	}
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, listener)
	s.listenersMu.Unlock()
}

// Notes returns the current collection in store order.
func (s *Service) Notes() []Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Notes()
}

// Get returns the note with the identifier.
func (s *Service) Get(id NoteID) (Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Find(id)
}

// Create stores a new Active note and starts tag enrichment in the background.
func (s *Service) Create(ctx context.Context, draft NoteDraft) (Note, error) {
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, reasonIDGeneration, err)
		return Note{}, newServiceError(opCreate, reasonIDGeneration, err)
	}
	return s.run(ctx, opCreate, CreateCommand{ID: id, Draft: draft}, id)
}

// Edit replaces title and content, clears the summary and regenerates tags.
func (s *Service) Edit(ctx context.Context, id NoteID, draft NoteDraft) (Note, error) {
	return s.run(ctx, opEdit, EditCommand{ID: id, Draft: draft}, id)
}

// Trash moves the note to the trash.
func (s *Service) Trash(ctx context.Context, id NoteID) (Note, error) {
	return s.run(ctx, opTrash, TrashCommand{ID: id}, id)
}

// Restore returns a trashed or archived note to the active view.
func (s *Service) Restore(ctx context.Context, id NoteID) (Note, error) {
	return s.run(ctx, opRestore, RestoreCommand{ID: id}, id)
}

// Archive archives a note that is not in the trash.
func (s *Service) Archive(ctx context.Context, id NoteID) (Note, error) {
	return s.run(ctx, opArchive, ArchiveCommand{ID: id}, id)
}

// PermanentDelete removes the note from the store.
func (s *Service) PermanentDelete(ctx context.Context, id NoteID) error {
	if _, err := s.apply(ctx, PermanentDeleteCommand{ID: id}); err != nil {
		return s.commandError(opPermanentDelete, id, err)
	}
	return nil
}

// Summarize generates a summary for the note and stores it. Failures are returned to the caller
// and leave the note untouched.
func (s *Service) Summarize(ctx context.Context, id NoteID) (Note, error) {
	note, ok := s.Get(id)
	if !ok {
		return Note{}, s.commandError(opSummarize, id, ErrNoteNotFound)
	}

	command, err := s.enrichment.summarize(ctx, note)
	if err != nil {
		return Note{}, s.commandError(opSummarize, id, err)
	}
	return s.run(ctx, opSummarize, command, id)
}

// WaitForEnrichment blocks until background tag generation tasks complete.
func (s *Service) WaitForEnrichment() {
	s.enrichment.wait()
}

// Close cancels background enrichment and waits for it to stop.
func (s *Service) Close() {
	s.enrichment.close()
}

func (s *Service) run(ctx context.Context, operation string, command Command, id NoteID) (Note, error) {
	if _, err := s.apply(ctx, command); err != nil {
		return Note{}, s.commandError(operation, id, err)
	}
	note, ok := s.Get(id)
	if !ok {
		return Note{}, s.commandError(operation, id, ErrNoteNotFound)
	}
	return note, nil
}

// apply runs the command against the current store, persists the result and dispatches effects.
func (s *Service) apply(ctx context.Context, command Command) (Effects, error) {
	s.mu.Lock()
	next, effects, err := command.Apply(s.store, s.clock())
	if err != nil {
		s.mu.Unlock()
		return Effects{}, err
	}
	s.store = next
	if effects.Persist {
		s.persistLocked(ctx, command.Name())
	}
	s.mu.Unlock()

	if effects.EnrichTags != nil {
		s.enrichment.requestTags(*effects.EnrichTags)
	}
	s.notify(Change{Command: command.Name(), NoteIDs: effects.ChangedIDs, Dismissed: effects.DismissDetail})
	return effects, nil
}

// persistLocked saves the store. Failures are logged and the in-memory state stays authoritative.
func (s *Service) persistLocked(ctx context.Context, commandName string) {
	if err := s.repository.Save(context.WithoutCancel(ctx), s.store.Notes()); err != nil {
		s.logError(opPersist, "save_failed", err, zap.String("command", commandName))
	}
}

func (s *Service) notify(change Change) {
	if len(change.NoteIDs) == 0 {
		return
	}
	s.listenersMu.RLock()
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.listenersMu.RUnlock()
	for _, listener := range listeners {
		listener(Change{
			Command:   change.Command,
			NoteIDs:   append([]NoteID(nil), change.NoteIDs...),
			Dismissed: change.Dismissed,
		})
	}
}

func (s *Service) commandError(operation string, id NoteID, err error) error {
	reason := reasonApplyFailed
	switch {
	case errors.Is(err, ErrNoteNotFound):
		reason = reasonNotFound
	case errors.Is(err, ErrInvalidNote):
		reason = reasonInvalidNote
	case errors.Is(err, ErrInvalidNoteID):
		reason = reasonInvalidID
	case errors.Is(err, ErrInvalidTransition):
		reason = reasonTransition
	case errors.Is(err, ErrStaleRevision):
		reason = reasonStale
	case errors.Is(err, ErrEnrichmentUnavailable):
		reason = reasonUnavailable
	case operation == opSummarize:
		reason = reasonEnrichment
	}
	s.logError(operation, reason, err, zap.String("note_id", id.String()))
	return newServiceError(operation, reason, err)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
