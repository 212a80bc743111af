package notes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var testNow = time.Unix(1700000000, 0).UTC()

func mustNoteID(t *testing.T, value string) NoteID {
	t.Helper()
	id, err := NewNoteID(value)
	if err != nil {
		t.Fatalf("unexpected note id error: %v", err)
	}
	return id
}

func mustCreate(t *testing.T, id string, title, content string) Note {
	t.Helper()
	note, err := CreateNote(mustNoteID(t, id), NoteDraft{Title: title, Content: content}, testNow)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return note
}

func mustArchive(t *testing.T, note Note) Note {
	t.Helper()
	archived, err := Archive(note)
	if err != nil {
		t.Fatalf("unexpected archive error: %v", err)
	}
	return archived
}

func noteIDs(notes []Note) []NoteID {
	ids := make([]NoteID, 0, len(notes))
	for _, note := range notes {
		ids = append(ids, note.ID)
	}
	return ids
}

func assertIDs(t *testing.T, notes []Note, expected ...NoteID) {
	t.Helper()
	ids := noteIDs(notes)
	if len(ids) != len(expected) {
		t.Fatalf("expected ids %v, got %v", expected, ids)
	}
	for index := range expected {
		if ids[index] != expected[index] {
			t.Fatalf("expected ids %v, got %v", expected, ids)
		}
	}
}

type sequenceIDProvider struct {
	mu    sync.Mutex
	ids   []string
	index int
}

func (p *sequenceIDProvider) NewID() (NoteID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.index >= len(p.ids) {
		return "", errors.New("exhausted ids")
	}
	id := p.ids[p.index]
	p.index++
	return NewNoteID(id)
}

type memoryRepository struct {
	mu      sync.Mutex
	notes   []Note
	saves   int
	loadErr error
	saveErr error
}

func (r *memoryRepository) Load(context.Context) ([]Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return append([]Note(nil), r.notes...), nil
}

func (r *memoryRepository) Save(_ context.Context, notes []Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.notes = append([]Note(nil), notes...)
	return nil
}

func (r *memoryRepository) snapshot() ([]Note, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Note(nil), r.notes...), r.saves
}

type tagCall struct {
	title   string
	content string
}

type stubEnricher struct {
	mu         sync.Mutex
	tagCalls   []tagCall
	tags       []string
	tagErr     error
	tagGate    chan struct{}
	summary    string
	summaryErr error
}

func (e *stubEnricher) GenerateTags(ctx context.Context, title, content string) ([]string, error) {
	e.mu.Lock()
	e.tagCalls = append(e.tagCalls, tagCall{title: title, content: content})
	gate := e.tagGate
	tags := append([]string(nil), e.tags...)
	err := e.tagErr
	e.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return tags, err
}

func (e *stubEnricher) GenerateSummary(context.Context, string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary, e.summaryErr
}

func (e *stubEnricher) calls() []tagCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]tagCall(nil), e.tagCalls...)
}
