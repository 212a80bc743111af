package notes

import (
	"fmt"
	"time"
)

// CreateNote builds a new Active note with empty tags.
func CreateNote(id NoteID, draft NoteDraft, now time.Time) (Note, error) {
	if id == "" {
		return Note{}, fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if err := draft.Validate(); err != nil {
		return Note{}, err
	}
	timestamp := millis(now)
	return Note{
		ID:              id,
		Title:           draft.Title,
		Content:         draft.Content,
		Tags:            []string{},
		CreatedAtMillis: timestamp,
		UpdatedAtMillis: timestamp,
		Revision:        1,
	}, nil
}

// Edit replaces title and content, clears the summary and bumps the revision.
// The lifecycle state is preserved.
func Edit(note Note, draft NoteDraft, now time.Time) (Note, error) {
	if err := draft.Validate(); err != nil {
		return Note{}, err
	}
	edited := note.clone()
	edited.Title = draft.Title
	edited.Content = draft.Content
	edited.Summary = ""
	edited.UpdatedAtMillis = millis(now)
	if edited.UpdatedAtMillis < edited.CreatedAtMillis {
		edited.UpdatedAtMillis = edited.CreatedAtMillis
	}
	edited.Revision = note.Revision + 1
	return edited, nil
}

// Trash moves a note to the trash from any state. Trash always wins over archive.
func Trash(note Note) Note {
	trashed := note.clone()
	trashed.IsDeleted = true
	trashed.IsArchived = false
	return trashed
}

// Restore returns a Trashed or Archived note to Active.
func Restore(note Note) (Note, error) {
	if note.State() == StateActive {
		return Note{}, fmt.Errorf("%w: restore from %s", ErrInvalidTransition, note.State())
	}
	restored := note.clone()
	restored.IsDeleted = false
	restored.IsArchived = false
	return restored, nil
}

// Archive moves a note that is not in the trash to Archived.
func Archive(note Note) (Note, error) {
	if note.State() == StateTrashed {
		return Note{}, fmt.Errorf("%w: archive from %s", ErrInvalidTransition, note.State())
	}
	archived := note.clone()
	archived.IsArchived = true
	archived.IsDeleted = false
	return archived, nil
}

// WithSummary sets the summary computed for the given revision.
func WithSummary(note Note, revision int64, summary string) (Note, error) {
	if note.Revision != revision {
		return Note{}, fmt.Errorf("%w: have %d, result for %d", ErrStaleRevision, note.Revision, revision)
	}
	summarized := note.clone()
	summarized.Summary = summary
	return summarized, nil
}

// WithTags sets the tags computed for the given revision. Only the tags field is touched.
func WithTags(note Note, revision int64, tags []string) (Note, error) {
	if note.Revision != revision {
		return Note{}, fmt.Errorf("%w: have %d, result for %d", ErrStaleRevision, note.Revision, revision)
	}
	tagged := note.clone()
	tagged.Tags = append([]string{}, tags...)
	return tagged, nil
}
