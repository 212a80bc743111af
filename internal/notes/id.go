package notes

import "github.com/google/uuid"

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues time-ordered UUIDv7 note identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (NoteID, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return NewNoteID(value.String())
}
