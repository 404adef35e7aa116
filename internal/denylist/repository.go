package denylist

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mehmetcc/zerodrop/internal/utils"
)

var (
	ErrDuplicateEntry       = errors.New("entry already exists in denied list")
	ErrEntryNotCreated      = errors.New("entry not created")
	ErrUnresponsiveDatabase = errors.New("error occurred during reading the denylist table")
)

type EntryRepository interface {
	Create(ctx context.Context, entry *Entry) error
	Exists(ctx context.Context, kind Kind, normalized string) (bool, error)
}

type entryRepository struct {
	db *gorm.DB
}

func NewEntryRepository(db *gorm.DB) EntryRepository {
	return &entryRepository{db: db}
}

// Create inserts the entry. A concurrent insert of the same normalized text
// loses on the unique index and is reported as ErrDuplicateEntry.
func (r *entryRepository) Create(ctx context.Context, entry *Entry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if utils.IsUniqueViolation(err) {
			return ErrDuplicateEntry
		}
		return fmt.Errorf("%w: %w", ErrEntryNotCreated, err)
	}
	return nil
}

func (r *entryRepository) Exists(ctx context.Context, kind Kind, normalized string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&Entry{}).
		Where("kind = ? AND normalized = ?", kind, normalized).
		Count(&count).
		Error
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrUnresponsiveDatabase, err)
	}
	return count > 0, nil
}
