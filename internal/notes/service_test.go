package notes

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestService(t *testing.T, repository Repository, enricher Enricher, ids ...string) *Service {
	t.Helper()
	cfg := ServiceConfig{
		Repository: repository,
		Clock:      func() time.Time { return testNow },
		IDProvider: &sequenceIDProvider{ids: ids},
		Logger:     zap.NewNop(),
	}
	if enricher != nil {
		cfg.Enricher = enricher
	}
	service, err := NewService(cfg)
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	t.Cleanup(service.Close)
	return service
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceConfig{IDProvider: &sequenceIDProvider{}})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "notes.service.new.missing_repository" {
		t.Fatalf("expected missing repository error, got %v", err)
	}
	_, err = NewService(ServiceConfig{Repository: &memoryRepository{}})
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "notes.service.new.missing_id_provider" {
		t.Fatalf("expected missing id provider error, got %v", err)
	}
}

func TestServiceCreatePersistsImmediatelyAndMergesTagsLater(t *testing.T) {
	repository := &memoryRepository{}
	enricher := &stubEnricher{tags: []string{"travel", " Travel ", "", "rome"}, tagGate: make(chan struct{})}
	service := newTestService(t, repository, enricher, "note-1")

	created, err := service.Create(context.Background(), NoteDraft{Title: "Trip", Content: "Rome in May"})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if len(created.Tags) != 0 {
		t.Fatalf("expected note to be saved before tags arrive, got %v", created.Tags)
	}
	persisted, saves := repository.snapshot()
	if saves != 1 || len(persisted) != 1 || len(persisted[0].Tags) != 0 {
		t.Fatalf("expected immediate save with empty tags, saves=%d notes=%#v", saves, persisted)
	}

	close(enricher.tagGate)
	service.WaitForEnrichment()

	stored, ok := service.Get("note-1")
	if !ok {
		t.Fatalf("expected note to exist")
	}
	if len(stored.Tags) != 2 || stored.Tags[0] != "travel" || stored.Tags[1] != "rome" {
		t.Fatalf("expected normalized tags, got %v", stored.Tags)
	}
	persisted, saves = repository.snapshot()
	if saves != 2 || len(persisted[0].Tags) != 2 {
		t.Fatalf("expected tag merge to be persisted, saves=%d", saves)
	}
}

func TestServiceTagFailureLeavesTagsUnchanged(t *testing.T) {
	enricher := &stubEnricher{tagErr: errors.New("model unavailable")}
	service := newTestService(t, &memoryRepository{}, enricher, "note-1")

	if _, err := service.Create(context.Background(), NoteDraft{Title: "t", Content: "c"}); err != nil {
		t.Fatalf("tag failure must not reach the caller: %v", err)
	}
	service.WaitForEnrichment()

	stored, _ := service.Get("note-1")
	if len(stored.Tags) != 0 {
		t.Fatalf("expected empty tags after failure, got %v", stored.Tags)
	}
}

func TestServiceEditClearsSummaryAndRequestsFreshTags(t *testing.T) {
	enricher := &stubEnricher{summary: "Short summary"}
	service := newTestService(t, &memoryRepository{}, enricher, "note-1")
	ctx := context.Background()

	if _, err := service.Create(ctx, NoteDraft{Title: "Old", Content: "old body"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	service.WaitForEnrichment()
	summarized, err := service.Summarize(ctx, "note-1")
	if err != nil {
		t.Fatalf("unexpected summarize error: %v", err)
	}
	if summarized.Summary != "Short summary" {
		t.Fatalf("expected summary to be stored, got %q", summarized.Summary)
	}

	edited, err := service.Edit(ctx, "note-1", NoteDraft{Title: "New", Content: "new body"})
	if err != nil {
		t.Fatalf("unexpected edit error: %v", err)
	}
	if edited.Summary != "" {
		t.Fatalf("expected edit to clear summary, got %q", edited.Summary)
	}
	service.WaitForEnrichment()

	calls := enricher.calls()
	if len(calls) != 2 {
		t.Fatalf("expected a tag request per save, got %d", len(calls))
	}
	if calls[1].title != "New" || calls[1].content != "new body" {
		t.Fatalf("expected tag request with edited content, got %#v", calls[1])
	}
}

func TestServiceDiscardsTagsForReplacedContent(t *testing.T) {
	enricher := &stubEnricher{tags: []string{"stale"}, tagGate: make(chan struct{})}
	service := newTestService(t, &memoryRepository{}, enricher, "note-1")
	ctx := context.Background()

	if _, err := service.Create(ctx, NoteDraft{Title: "t", Content: "c"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := service.Edit(ctx, "note-1", NoteDraft{Title: "t2", Content: "c2"}); err != nil {
		t.Fatalf("unexpected edit error: %v", err)
	}
	close(enricher.tagGate)
	service.WaitForEnrichment()

	stored, _ := service.Get("note-1")
	if stored.Title != "t2" || stored.Content != "c2" {
		t.Fatalf("late tag result must not clobber the edit: %#v", stored)
	}
	if stored.Revision != 2 {
		t.Fatalf("unexpected revision %d", stored.Revision)
	}
}

func TestServiceSummarizeFailureIsReturnedAndStateUntouched(t *testing.T) {
	repository := &memoryRepository{}
	enricher := &stubEnricher{summaryErr: errors.New("quota exceeded")}
	service := newTestService(t, repository, enricher, "note-1")
	ctx := context.Background()

	if _, err := service.Create(ctx, NoteDraft{Title: "t", Content: "c"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	service.WaitForEnrichment()
	_, saves := repository.snapshot()

	_, err := service.Summarize(ctx, "note-1")
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "notes.summarize.enrichment_failed" {
		t.Fatalf("expected enrichment failure, got %v", err)
	}
	stored, _ := service.Get("note-1")
	if stored.Summary != "" {
		t.Fatalf("summary must remain empty, got %q", stored.Summary)
	}
	if _, after := repository.snapshot(); after != saves {
		t.Fatalf("failed summarize must not persist")
	}
}

func TestServiceSummarizeRejectsBlankSummary(t *testing.T) {
	service := newTestService(t, &memoryRepository{}, &stubEnricher{summary: "   "}, "note-1")
	if _, err := service.Create(context.Background(), NoteDraft{Title: "t", Content: "c"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := service.Summarize(context.Background(), "note-1"); !errors.Is(err, ErrEmptySummary) {
		t.Fatalf("expected empty summary error, got %v", err)
	}
}

func TestServiceSummarizeWithoutEnricher(t *testing.T) {
	service := newTestService(t, &memoryRepository{}, nil, "note-1")
	if _, err := service.Create(context.Background(), NoteDraft{Title: "t", Content: "c"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if _, err := service.Summarize(context.Background(), "note-1"); !errors.Is(err, ErrEnrichmentUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}

func TestServiceLifecycleErrorsCarryCodes(t *testing.T) {
	service := newTestService(t, &memoryRepository{}, nil, "note-1")
	ctx := context.Background()
	if _, err := service.Create(ctx, NoteDraft{Title: "t", Content: "c"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}

	testCases := []struct {
		name string
		call func() error
		code string
	}{
		{
			name: "restore-active",
			call: func() error { _, err := service.Restore(ctx, "note-1"); return err },
			code: "notes.restore.invalid_transition",
		},
		{
			name: "trash-missing",
			call: func() error { _, err := service.Trash(ctx, "missing"); return err },
			code: "notes.trash.note_not_found",
		},
		{
			name: "edit-blank",
			call: func() error { _, err := service.Edit(ctx, "note-1", NoteDraft{Title: "", Content: "c"}); return err },
			code: "notes.edit.invalid_note",
		},
		{
			name: "create-id-exhausted",
			call: func() error { _, err := service.Create(ctx, NoteDraft{Title: "t", Content: "c"}); return err },
			code: "notes.create.id_generation_failed",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			var serviceErr *ServiceError
			if err := testCase.call(); !errors.As(err, &serviceErr) || serviceErr.Code() != testCase.code {
				t.Fatalf("expected code %s, got %v", testCase.code, err)
			}
		})
	}
}

func TestServicePersistFailureIsLoggedNotSurfaced(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	repository := &memoryRepository{saveErr: errors.New("disk full")}
	service, err := NewService(ServiceConfig{
		Repository: repository,
		Clock:      func() time.Time { return testNow },
		IDProvider: &sequenceIDProvider{ids: []string{"note-1"}},
		Logger:     zap.New(core),
	})
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	t.Cleanup(service.Close)

	created, err := service.Create(context.Background(), NoteDraft{Title: "t", Content: "c"})
	if err != nil {
		t.Fatalf("persistence failure must not fail the operation: %v", err)
	}
	if _, ok := service.Get(created.ID); !ok {
		t.Fatalf("in-memory state must keep the note")
	}
	entries := logs.FilterField(zap.String("operation", "notes.persist")).All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected one persistence error log, got %d", len(entries))
	}
}

func TestServiceLoadCorruptDataYieldsEmptyStore(t *testing.T) {
	repository := &memoryRepository{loadErr: ErrCorruptSnapshot}
	service := newTestService(t, repository, nil)
	if count := service.Load(context.Background()); count != 0 {
		t.Fatalf("expected empty store, got %d notes", count)
	}
	if len(service.Notes()) != 0 {
		t.Fatalf("expected no notes")
	}
}

func TestServiceLoadRestoresPersistedOrder(t *testing.T) {
	repository := &memoryRepository{notes: []Note{mustCreate(t, "b", "t", "c"), mustCreate(t, "a", "t", "c")}}
	service := newTestService(t, repository, nil)
	if count := service.Load(context.Background()); count != 2 {
		t.Fatalf("expected 2 notes, got %d", count)
	}
	assertIDs(t, service.Notes(), "b", "a")
}

func TestServiceNotifiesListeners(t *testing.T) {
	service := newTestService(t, &memoryRepository{}, nil, "note-1")
	var received []Change
	service.AddListener(func(change Change) {
		received = append(received, change)
	})

	if _, err := service.Create(context.Background(), NoteDraft{Title: "t", Content: "c"}); err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if err := service.PermanentDelete(context.Background(), "note-1"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if len(received) != 2 {
		t.Fatalf("expected two notifications, got %d", len(received))
	}
	if received[0].Command != "create" || received[0].Dismissed != "" || received[0].NoteIDs[0] != "note-1" {
		t.Fatalf("unexpected create notification: %#v", received[0])
	}
	if received[1].Command != "permanent_delete" || received[1].Dismissed != "note-1" {
		t.Fatalf("unexpected delete notification: %#v", received[1])
	}
}

func TestServiceCloseRacesTagRequests(t *testing.T) {
	const creators = 16
	ids := make([]string, 0, creators+1)
	for index := 0; index <= creators; index++ {
		ids = append(ids, fmt.Sprintf("note-%d", index))
	}
	enricher := &stubEnricher{tagGate: make(chan struct{})}
	service := newTestService(t, &memoryRepository{}, enricher, ids...)

	var wg sync.WaitGroup
	for index := 0; index < creators; index++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.Create(context.Background(), NoteDraft{Title: "t", Content: "c"}); err != nil {
				t.Errorf("unexpected create error: %v", err)
			}
		}()
	}
	service.Close()
	wg.Wait()

	before := len(enricher.calls())
	if _, err := service.Create(context.Background(), NoteDraft{Title: "late", Content: "c"}); err != nil {
		t.Fatalf("create after close must still save: %v", err)
	}
	service.WaitForEnrichment()
	if after := len(enricher.calls()); after != before {
		t.Fatalf("tag generation must not start after close, calls went from %d to %d", before, after)
	}
}
