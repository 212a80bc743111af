package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultStorageKey is the key the note collection is stored under.
const DefaultStorageKey = "lumina_notes_data"

var (
	// ErrCorruptSnapshot indicates that the persisted note collection could not be decoded.
	ErrCorruptSnapshot = errors.New("notes: corrupt persisted snapshot")

	errMissingStorageKey = errors.New("storage key is required")
)

// KeyValueEntry stores one serialized value per key.
type KeyValueEntry struct {
	Key             string `gorm:"column:entry_key;primaryKey;size:190;not null"`
	Value           string `gorm:"column:entry_value;type:text;not null"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (KeyValueEntry) TableName() string {
	return "kv_entries"
}

// Repository is the load-at-startup, save-on-change persistence contract for the note collection.
type Repository interface {
	Load(ctx context.Context) ([]Note, error)
	Save(ctx context.Context, notes []Note) error
}

// KeyValueRepository persists the whole note collection as a JSON array under a single key.
type KeyValueRepository struct {
	db    *gorm.DB
	key   string
	clock func() time.Time
}

// NewKeyValueRepository constructs a repository bound to the provided key.
func NewKeyValueRepository(db *gorm.DB, key string, clock func() time.Time) (*KeyValueRepository, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if key == "" {
		return nil, errMissingStorageKey
	}
	if clock == nil {
		clock = time.Now
	}
	return &KeyValueRepository{db: db, key: key, clock: clock}, nil
}

// Load reads the stored collection. A missing key yields no notes and no error.
func (r *KeyValueRepository) Load(ctx context.Context) ([]Note, error) {
	var entry KeyValueEntry
	err := r.db.WithContext(ctx).Where("entry_key = ?", r.key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeNotes([]byte(entry.Value))
}

// Save replaces the stored collection.
func (r *KeyValueRepository) Save(ctx context.Context, notes []Note) error {
	encoded, err := EncodeNotes(notes)
	if err != nil {
		return err
	}
	entry := KeyValueEntry{
		Key:             r.key,
		Value:           string(encoded),
		UpdatedAtMillis: millis(r.clock()),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at_ms"}),
	}).Create(&entry).Error
}

// EncodeNotes serializes notes into the persisted JSON array format.
func EncodeNotes(notes []Note) ([]byte, error) {
	if notes == nil {
		notes = []Note{}
	}
	return json.Marshal(notes)
}

// DecodeNotes parses the persisted JSON array format and normalizes legacy records.
func DecodeNotes(raw []byte) ([]Note, error) {
	var decoded []Note
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	for index := range decoded {
		if decoded[index].Tags == nil {
			decoded[index].Tags = []string{}
		}
		if decoded[index].Revision <= 0 {
			decoded[index].Revision = 1
		}
		if decoded[index].IsDeleted {
			decoded[index].IsArchived = false
		}
	}
	return decoded, nil
}
