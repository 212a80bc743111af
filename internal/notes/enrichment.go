package notes

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultEnrichmentTimeout = 30 * time.Second
	maxTags                  = 8
)

var (
	// ErrEnrichmentUnavailable indicates that no AI capability is configured.
	ErrEnrichmentUnavailable = errors.New("notes: enrichment unavailable")
	// ErrEmptySummary indicates that the AI capability returned a blank summary.
	ErrEmptySummary = errors.New("notes: empty summary")
)

// Enricher is the AI capability used to derive tags and summaries from note text.
type Enricher interface {
	GenerateTags(ctx context.Context, title, content string) ([]string, error)
	GenerateSummary(ctx context.Context, content string) (string, error)
}

type commandApplier func(ctx context.Context, command Command) (Effects, error)

// enrichmentCoordinator runs tag generation detached from the save path and merges
// results back into the store by id, one field at a time.
type enrichmentCoordinator struct {
	enricher Enricher
	apply    commandApplier
	logger   *zap.Logger
	timeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func newEnrichmentCoordinator(enricher Enricher, apply commandApplier, logger *zap.Logger, timeout time.Duration) *enrichmentCoordinator {
	if timeout <= 0 {
		timeout = defaultEnrichmentTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &enrichmentCoordinator{
		enricher: enricher,
		apply:    apply,
		logger:   logger,
		timeout:  timeout,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// requestTags starts a background tag generation for the note revision. Failures never reach the caller.
func (c *enrichmentCoordinator) requestTags(request TagRequest) {
	if c.enricher == nil {
		c.logger.Debug("tag enrichment skipped", zap.String("note_id", request.NoteID.String()))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		defer func() {
			if recovered := recover(); recovered != nil {
				c.logger.Error("panic in tag enrichment", zap.Any("panic", recovered))
			}
		}()
		c.runTags(request)
	}()
}

func (c *enrichmentCoordinator) runTags(request TagRequest) {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	fields := []zap.Field{
		zap.String("note_id", request.NoteID.String()),
		zap.Int64("revision", request.Revision),
	}

	tags, err := c.enricher.GenerateTags(ctx, request.Title, request.Content)
	if err != nil {
		c.logger.Warn("tag generation failed", append(fields, zap.Error(err))...)
		return
	}

	_, err = c.apply(ctx, MergeTagsCommand{
		ID:       request.NoteID,
		Revision: request.Revision,
		Tags:     NormalizeTags(tags),
	})
	switch {
	case err == nil:
		c.logger.Debug("tags merged", fields...)
	case errors.Is(err, ErrStaleRevision), errors.Is(err, ErrNoteNotFound):
		c.logger.Debug("tag result discarded", append(fields, zap.Error(err))...)
	default:
		c.logger.Warn("tag merge failed", append(fields, zap.Error(err))...)
	}
}

// summarize generates a summary for the note and returns the merge command to apply.
func (c *enrichmentCoordinator) summarize(ctx context.Context, note Note) (MergeSummaryCommand, error) {
	if c.enricher == nil {
		return MergeSummaryCommand{}, ErrEnrichmentUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	summary, err := c.enricher.GenerateSummary(ctx, note.Content)
	if err != nil {
		return MergeSummaryCommand{}, err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return MergeSummaryCommand{}, ErrEmptySummary
	}
	return MergeSummaryCommand{ID: note.ID, Revision: note.Revision, Summary: summary}, nil
}

func (c *enrichmentCoordinator) wait() {
	c.tasks.Wait()
}

// close stops accepting tag requests, cancels running ones and waits for them to finish.
func (c *enrichmentCoordinator) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.tasks.Wait()
}

// NormalizeTags trims tags, drops blanks and case-insensitive duplicates, and caps the count.
func NormalizeTags(tags []string) []string {
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(tag)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, duplicate := seen[key]; duplicate {
			continue
		}
		seen[key] = struct{}{}
		normalized = append(normalized, trimmed)
		if len(normalized) == maxTags {
			break
		}
	}
	return normalized
}
