package notes

import (
	"fmt"
	"time"
)

// TagRequest asks the enrichment coordinator to (re)generate tags for a note revision.
type TagRequest struct {
	NoteID   NoteID
	Revision int64
	Title    string
	Content  string
}

// Effects lists the side effects a command requires after it changed the store.
type Effects struct {
	Persist       bool
	DismissDetail NoteID
	EnrichTags    *TagRequest
	ChangedIDs    []NoteID
}

// Command is a lifecycle operation applied to an explicitly owned store.
type Command interface {
	Name() string
	Apply(store Store, now time.Time) (Store, Effects, error)
}

// CreateCommand inserts a new note at the front of the store.
type CreateCommand struct {
	ID    NoteID
	Draft NoteDraft
}

func (CreateCommand) Name() string { return "create" }

func (c CreateCommand) Apply(store Store, now time.Time) (Store, Effects, error) {
	if _, exists := store.Find(c.ID); exists {
		return store, Effects{}, fmt.Errorf("%w: duplicate %s", ErrInvalidNoteID, c.ID)
	}
	note, err := CreateNote(c.ID, c.Draft, now)
	if err != nil {
		return store, Effects{}, err
	}
	return store.Prepend(note), Effects{
		Persist:    true,
		EnrichTags: tagRequestFor(note),
		ChangedIDs: []NoteID{note.ID},
	}, nil
}

// EditCommand replaces a note's title and content.
type EditCommand struct {
	ID    NoteID
	Draft NoteDraft
}

func (EditCommand) Name() string { return "edit" }

func (c EditCommand) Apply(store Store, now time.Time) (Store, Effects, error) {
	next, edited, err := store.Update(c.ID, func(note Note) (Note, error) {
		return Edit(note, c.Draft, now)
	})
	if err != nil {
		return store, Effects{}, err
	}
	return next, Effects{
		Persist:    true,
		EnrichTags: tagRequestFor(edited),
		ChangedIDs: []NoteID{edited.ID},
	}, nil
}

// TrashCommand soft-deletes a note.
type TrashCommand struct {
	ID NoteID
}

func (TrashCommand) Name() string { return "trash" }

func (c TrashCommand) Apply(store Store, _ time.Time) (Store, Effects, error) {
	next, _, err := store.Update(c.ID, func(note Note) (Note, error) {
		return Trash(note), nil
	})
	if err != nil {
		return store, Effects{}, err
	}
	return next, Effects{Persist: true, DismissDetail: c.ID, ChangedIDs: []NoteID{c.ID}}, nil
}

// RestoreCommand returns a trashed or archived note to the active view.
type RestoreCommand struct {
	ID NoteID
}

func (RestoreCommand) Name() string { return "restore" }

func (c RestoreCommand) Apply(store Store, _ time.Time) (Store, Effects, error) {
	next, _, err := store.Update(c.ID, Restore)
	if err != nil {
		return store, Effects{}, err
	}
	return next, Effects{Persist: true, ChangedIDs: []NoteID{c.ID}}, nil
}

// ArchiveCommand archives a note that is not in the trash.
type ArchiveCommand struct {
	ID NoteID
}

func (ArchiveCommand) Name() string { return "archive" }

func (c ArchiveCommand) Apply(store Store, _ time.Time) (Store, Effects, error) {
	next, _, err := store.Update(c.ID, Archive)
	if err != nil {
		return store, Effects{}, err
	}
	return next, Effects{Persist: true, DismissDetail: c.ID, ChangedIDs: []NoteID{c.ID}}, nil
}

// PermanentDeleteCommand removes a note from the store entirely.
type PermanentDeleteCommand struct {
	ID NoteID
}

func (PermanentDeleteCommand) Name() string { return "permanent_delete" }

func (c PermanentDeleteCommand) Apply(store Store, _ time.Time) (Store, Effects, error) {
	next, err := store.Remove(c.ID)
	if err != nil {
		return store, Effects{}, err
	}
	return next, Effects{Persist: true, DismissDetail: c.ID, ChangedIDs: []NoteID{c.ID}}, nil
}

// MergeTagsCommand applies a tag enrichment result. Only the tags field is written.
type MergeTagsCommand struct {
	ID       NoteID
	Revision int64
	Tags     []string
}

func (MergeTagsCommand) Name() string { return "merge_tags" }

func (c MergeTagsCommand) Apply(store Store, _ time.Time) (Store, Effects, error) {
	next, _, err := store.Update(c.ID, func(note Note) (Note, error) {
		return WithTags(note, c.Revision, c.Tags)
	})
	if err != nil {
		return store, Effects{}, err
	}
	return next, Effects{Persist: true, ChangedIDs: []NoteID{c.ID}}, nil
}

// MergeSummaryCommand applies a summary enrichment result. Only the summary field is written.
type MergeSummaryCommand struct {
	ID       NoteID
	Revision int64
	Summary  string
}

func (MergeSummaryCommand) Name() string { return "merge_summary" }

func (c MergeSummaryCommand) Apply(store Store, _ time.Time) (Store, Effects, error) {
	next, _, err := store.Update(c.ID, func(note Note) (Note, error) {
		return WithSummary(note, c.Revision, c.Summary)
	})
	if err != nil {
		return store, Effects{}, err
	}
	return next, Effects{Persist: true, ChangedIDs: []NoteID{c.ID}}, nil
}

func tagRequestFor(note Note) *TagRequest {
	return &TagRequest{
		NoteID:   note.ID,
		Revision: note.Revision,
		Title:    note.Title,
		Content:  note.Content,
	}
}
