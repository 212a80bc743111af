package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lumina/internal/notes"
	"github.com/MarcoPoloResearchLab/lumina/internal/workspace"
)

const defaultHeartbeatInterval = 25 * time.Second

var errMissingWorkspace = errors.New("workspace dependency required")

type Dependencies struct {
	Workspace         *workspace.Workspace
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	HeartbeatInterval time.Duration
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Workspace == nil {
		return nil, errMissingWorkspace
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		workspace:         deps.Workspace,
		realtime:          deps.Realtime,
		logger:            logger,
		heartbeatInterval: heartbeat,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/notes", handler.handleListNotes)
	router.POST("/notes", handler.handleCreateNote)
	router.GET("/notes/stream", handler.handleNotesStream)
	router.DELETE("/notes/viewer", handler.handleCloseViewer)
	router.GET("/notes/:id", handler.handleViewNote)
	router.PUT("/notes/:id", handler.handleEditNote)
	router.DELETE("/notes/:id", handler.handlePermanentDelete)
	router.POST("/notes/:id/trash", handler.handleTrashNote)
	router.POST("/notes/:id/restore", handler.handleRestoreNote)
	router.POST("/notes/:id/archive", handler.handleArchiveNote)
	router.POST("/notes/:id/summary", handler.handleSummarizeNote)
	router.GET("/search", handler.handleSearchState)
	router.PUT("/search", handler.handleSetSearch)

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:    []string{"Content-Type", "Last-Event-ID"},
		MaxAge:          12 * time.Hour,
	})
}

type httpHandler struct {
	workspace         *workspace.Workspace
	realtime          *RealtimeDispatcher
	logger            *zap.Logger
	heartbeatInterval time.Duration
}

type noteDraftPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type searchPayload struct {
	Query string `json:"query"`
	Mode  string `json:"mode"`
}

type realtimeNotePayload struct {
	NoteIDs []string `json:"noteIds"`
}

type realtimeHeartbeatPayload struct {
	Source    string `json:"source"`
	Timestamp int64  `json:"timestamp"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	if raw, present := c.GetQuery("view"); present {
		view, err := notes.ParseView(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_view"})
			return
		}
		h.workspace.SetView(view)
	}
	c.JSON(http.StatusOK, h.workspace.Display())
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	var request noteDraftPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	note, err := h.workspace.CreateNote(c.Request.Context(), notes.NoteDraft{Title: request.Title, Content: request.Content})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

func (h *httpHandler) handleViewNote(c *gin.Context) {
	id, ok := h.noteIDParam(c)
	if !ok {
		return
	}
	note, err := h.workspace.ViewNote(id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *httpHandler) handleCloseViewer(c *gin.Context) {
	h.workspace.CloseViewer()
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleEditNote(c *gin.Context) {
	id, ok := h.noteIDParam(c)
	if !ok {
		return
	}
	var request noteDraftPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	note, err := h.workspace.EditNote(c.Request.Context(), id, notes.NoteDraft{Title: request.Title, Content: request.Content})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *httpHandler) handleTrashNote(c *gin.Context) {
	h.handleTransition(c, h.workspace.TrashNote)
}

func (h *httpHandler) handleRestoreNote(c *gin.Context) {
	h.handleTransition(c, h.workspace.RestoreNote)
}

func (h *httpHandler) handleArchiveNote(c *gin.Context) {
	h.handleTransition(c, h.workspace.ArchiveNote)
}

func (h *httpHandler) handleSummarizeNote(c *gin.Context) {
	h.handleTransition(c, h.workspace.SummarizeNote)
}

func (h *httpHandler) handleTransition(c *gin.Context, transition func(ctx context.Context, id notes.NoteID) (notes.Note, error)) {
	id, ok := h.noteIDParam(c)
	if !ok {
		return
	}
	note, err := transition(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

func (h *httpHandler) handlePermanentDelete(c *gin.Context) {
	id, ok := h.noteIDParam(c)
	if !ok {
		return
	}
	if err := h.workspace.PermanentDeleteNote(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSearchState(c *gin.Context) {
	c.JSON(http.StatusOK, h.workspace.SearchState())
}

func (h *httpHandler) handleSetSearch(c *gin.Context) {
	var request searchPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	mode, err := notes.ParseSearchMode(request.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_mode"})
		return
	}
	h.workspace.SetSearch(request.Query, mode)
	c.JSON(http.StatusOK, h.workspace.Display())
}

func (h *httpHandler) handleNotesStream(c *gin.Context) {
	if h.realtime == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime_unavailable"})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			switch message.EventType {
			case RealtimeEventSearchChanged:
				c.SSEvent(message.EventType, message.Search)
			default:
				c.SSEvent(message.EventType, realtimeNotePayload{NoteIDs: message.NoteIDs})
			}
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeHeartbeatPayload{
				Source:    realtimeSourceBackend,
				Timestamp: tick.UTC().UnixMilli(),
			})
			return true
		}
	})
}

func (h *httpHandler) noteIDParam(c *gin.Context) (notes.NoteID, bool) {
	id, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_note_id"})
		return "", false
	}
	return id, true
}

// respondError maps domain failures onto HTTP status codes.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	label := "internal_error"
	switch {
	case errors.Is(err, notes.ErrNoteNotFound):
		status, label = http.StatusNotFound, "note_not_found"
	case errors.Is(err, notes.ErrInvalidNote):
		status, label = http.StatusBadRequest, "invalid_note"
	case errors.Is(err, notes.ErrInvalidNoteID):
		status, label = http.StatusBadRequest, "invalid_note_id"
	case errors.Is(err, notes.ErrInvalidTransition):
		status, label = http.StatusConflict, "invalid_transition"
	case errors.Is(err, notes.ErrStaleRevision):
		status, label = http.StatusConflict, "stale_revision"
	case errors.Is(err, workspace.ErrSummaryInProgress):
		status, label = http.StatusConflict, "summary_in_progress"
	case errors.Is(err, notes.ErrEnrichmentUnavailable):
		status, label = http.StatusServiceUnavailable, "enrichment_unavailable"
	}

	body := gin.H{"error": label}
	var serviceErr *notes.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
		if status == http.StatusInternalServerError && serviceErr.Code() == "notes.summarize.enrichment_failed" {
			status = http.StatusBadGateway
			body["error"] = "summary_failed"
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}
