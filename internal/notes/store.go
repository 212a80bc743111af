package notes

// Store is an immutable ordered collection of notes. Most recently created notes come first.
// Every mutation returns a new Store and leaves the receiver untouched.
type Store struct {
	notes []Note
}

// NewStore builds a store from notes in display order. Notes with empty or duplicate
// identifiers are dropped; the first occurrence wins.
func NewStore(notes []Note) Store {
	seen := make(map[NoteID]struct{}, len(notes))
	kept := make([]Note, 0, len(notes))
	for _, note := range notes {
		if note.ID == "" {
			continue
		}
		if _, duplicate := seen[note.ID]; duplicate {
			continue
		}
		seen[note.ID] = struct{}{}
		kept = append(kept, note.clone())
	}
	return Store{notes: kept}
}

// Len returns the number of notes in the store.
func (s Store) Len() int {
	return len(s.notes)
}

// Notes returns a copy of the notes in store order.
func (s Store) Notes() []Note {
	copied := make([]Note, len(s.notes))
	for index, note := range s.notes {
		copied[index] = note.clone()
	}
	return copied
}

// Find returns the note with the given identifier.
func (s Store) Find(id NoteID) (Note, bool) {
	index := s.indexOf(id)
	if index < 0 {
		return Note{}, false
	}
	return s.notes[index].clone(), true
}

// Prepend inserts a new note at the front.
func (s Store) Prepend(note Note) Store {
	next := make([]Note, 0, len(s.notes)+1)
	next = append(next, note.clone())
	next = append(next, s.notes...)
	return Store{notes: next}
}

// Replace swaps the note sharing the identifier, keeping its position.
func (s Store) Replace(note Note) (Store, error) {
	index := s.indexOf(note.ID)
	if index < 0 {
		return s, ErrNoteNotFound
	}
	next := make([]Note, len(s.notes))
	copy(next, s.notes)
	next[index] = note.clone()
	return Store{notes: next}, nil
}

// Remove deletes the note with the identifier.
func (s Store) Remove(id NoteID) (Store, error) {
	index := s.indexOf(id)
	if index < 0 {
		return s, ErrNoteNotFound
	}
	next := make([]Note, 0, len(s.notes)-1)
	next = append(next, s.notes[:index]...)
	next = append(next, s.notes[index+1:]...)
	return Store{notes: next}, nil
}

// Update applies transition to the stored note and replaces it by id.
func (s Store) Update(id NoteID, transition func(Note) (Note, error)) (Store, Note, error) {
	current, ok := s.Find(id)
	if !ok {
		return s, Note{}, ErrNoteNotFound
	}
	updated, err := transition(current)
	if err != nil {
		return s, Note{}, err
	}
	next, err := s.Replace(updated)
	if err != nil {
		return s, Note{}, err
	}
	return next, updated, nil
}

func (s Store) indexOf(id NoteID) int {
	for index := range s.notes {
		if s.notes[index].ID == id {
			return index
		}
	}
	return -1
}
