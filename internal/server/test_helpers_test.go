package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
	"github.com/MarcoPoloResearchLab/lumina/internal/workspace"
)

type memoryRepository struct {
	mu    sync.Mutex
	notes []notes.Note
}

func (r *memoryRepository) Load(context.Context) ([]notes.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notes.Note(nil), r.notes...), nil
}

func (r *memoryRepository) Save(_ context.Context, saved []notes.Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append([]notes.Note(nil), saved...)
	return nil
}

type counterIDProvider struct {
	mu   sync.Mutex
	next int
}

func (p *counterIDProvider) NewID() (notes.NoteID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return notes.NewNoteID(fmt.Sprintf("note-%d", p.next))
}

type stubEnricher struct {
	tags       []string
	summary    string
	summaryErr error
}

func (e *stubEnricher) GenerateTags(context.Context, string, string) ([]string, error) {
	return e.tags, nil
}

func (e *stubEnricher) GenerateSummary(context.Context, string) (string, error) {
	return e.summary, e.summaryErr
}

type testHarness struct {
	service  *notes.Service
	realtime *RealtimeDispatcher
	handler  http.Handler
}

func newTestHarness(t *testing.T, enricher notes.Enricher) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := notes.ServiceConfig{
		Repository: &memoryRepository{},
		Clock:      func() time.Time { return time.Unix(1700000000, 0) },
		IDProvider: &counterIDProvider{},
		Logger:     zap.NewNop(),
	}
	if enricher != nil {
		cfg.Enricher = enricher
	}
	service, err := notes.NewService(cfg)
	if err != nil {
		t.Fatalf("failed to build notes service: %v", err)
	}
	t.Cleanup(service.Close)

	realtime := NewRealtimeDispatcher()
	service.AddListener(realtime.NoteListener())

	ws, err := workspace.New(workspace.Config{Notes: service})
	if err != nil {
		t.Fatalf("failed to build workspace: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{
		Workspace:         ws,
		Realtime:          realtime,
		Logger:            zap.NewNop(),
		HeartbeatInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return &testHarness{service: service, realtime: realtime, handler: handler}
}

func (h *testHarness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

func (h *testHarness) create(t *testing.T, title, content string) notes.Note {
	t.Helper()
	recorder := h.do(t, http.MethodPost, "/notes", fmt.Sprintf(`{"title":%q,"content":%q}`, title, content))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected created status, got %d: %s", recorder.Code, recorder.Body.String())
	}
	return decodeNote(t, recorder)
}

func decodeNote(t *testing.T, recorder *httptest.ResponseRecorder) notes.Note {
	t.Helper()
	var note notes.Note
	if err := json.Unmarshal(recorder.Body.Bytes(), &note); err != nil {
		t.Fatalf("failed to decode note: %v", err)
	}
	return note
}

func decodeDisplay(t *testing.T, recorder *httptest.ResponseRecorder) workspace.DisplayState {
	t.Helper()
	var state workspace.DisplayState
	if err := json.Unmarshal(recorder.Body.Bytes(), &state); err != nil {
		t.Fatalf("failed to decode display state: %v", err)
	}
	return state
}

func decodeError(t *testing.T, recorder *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	body := map[string]string{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}
