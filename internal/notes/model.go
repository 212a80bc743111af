package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidNote indicates that a note failed validation (empty title or content).
	ErrInvalidNote = errors.New("notes: invalid note")
	// ErrNoteNotFound indicates that no note with the requested identifier exists in the store.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrInvalidTransition indicates that a lifecycle operation is not allowed from the note's current state.
	ErrInvalidTransition = errors.New("notes: invalid lifecycle transition")
	// ErrStaleRevision indicates that an enrichment result targets content that has since been edited.
	ErrStaleRevision = errors.New("notes: stale note revision")
	// ErrInvalidView indicates an unknown view partition name.
	ErrInvalidView = errors.New("notes: invalid view")
	// ErrInvalidSearchMode indicates an unknown search mode name.
	ErrInvalidSearchMode = errors.New("notes: invalid search mode")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// State is the lifecycle state derived from a note's deletion and archive flags.
type State string

const (
	StateActive   State = "active"
	StateArchived State = "archived"
	StateTrashed  State = "trashed"
)

// Note is the sole persisted entity. The JSON shape is the persisted key-value format.
type Note struct {
	ID              NoteID   `json:"id"`
	Title           string   `json:"title"`
	Content         string   `json:"content"`
	Summary         string   `json:"summary,omitempty"`
	Tags            []string `json:"tags"`
	CreatedAtMillis int64    `json:"createdAt"`
	UpdatedAtMillis int64    `json:"updatedAt"`
	IsDeleted       bool     `json:"isDeleted"`
	IsArchived      bool     `json:"isArchived"`
	Revision        int64    `json:"revision"`
}

// State reports which lifecycle state the note is in. Trash takes precedence over archive.
func (n Note) State() State {
	switch {
	case n.IsDeleted:
		return StateTrashed
	case n.IsArchived:
		return StateArchived
	default:
		return StateActive
	}
}

// HasSummary reports whether a summary has been generated for the current content.
func (n Note) HasSummary() bool {
	return n.Summary != ""
}

// clone returns a copy that shares no slices with the receiver.
func (n Note) clone() Note {
	copied := n
	copied.Tags = append([]string(nil), n.Tags...)
	if copied.Tags == nil {
		copied.Tags = []string{}
	}
	return copied
}

// NoteDraft captures user-supplied title and content for create and edit.
type NoteDraft struct {
	Title   string
	Content string
}

// Validate enforces the non-empty title and content requirement.
func (d NoteDraft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidNote)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("%w: empty content", ErrInvalidNote)
	}
	return nil
}

// View names one of the mutually exclusive view partitions.
type View string

const (
	ViewActive   View = "active"
	ViewArchived View = "archived"
	ViewTrash    View = "trash"
)

// ParseView converts raw input into a View. Empty input selects the active view.
func ParseView(rawInput string) (View, error) {
	switch View(strings.ToLower(strings.TrimSpace(rawInput))) {
	case "", ViewActive:
		return ViewActive, nil
	case ViewArchived:
		return ViewArchived, nil
	case ViewTrash:
		return ViewTrash, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidView, rawInput)
	}
}

// Contains reports whether the note belongs to the view partition.
func (v View) Contains(note Note) bool {
	switch v {
	case ViewTrash:
		return note.IsDeleted
	case ViewArchived:
		return note.IsArchived && !note.IsDeleted
	default:
		return !note.IsDeleted && !note.IsArchived
	}
}

// SearchMode selects literal keyword matching or AI-ranked semantic search.
type SearchMode string

const (
	SearchModeKeyword  SearchMode = "keyword"
	SearchModeSemantic SearchMode = "semantic"
)

// ParseSearchMode converts raw input into a SearchMode. Empty input selects keyword mode.
func ParseSearchMode(rawInput string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(rawInput))) {
	case "", SearchModeKeyword:
		return SearchModeKeyword, nil
	case SearchModeSemantic:
		return SearchModeSemantic, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSearchMode, rawInput)
	}
}

// SearchResult is an ephemeral ranking entry produced by semantic search.
type SearchResult struct {
	NoteID         NoteID  `json:"noteId"`
	RelevanceScore float64 `json:"relevanceScore"`
	Reason         string  `json:"reason"`
}

func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}
