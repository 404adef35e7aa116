package authentication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var (
	ErrRecordNotFoundByGivenToken = errors.New("record not found by given token")
	ErrUnresponsiveDatabase       = errors.New("error occurred during writing to records table")
)

type RecordRepository interface {
	Create(ctx context.Context, record *RefreshTokenRecord) error
	ReadByTokenHash(ctx context.Context, tokenHash string) (*RefreshTokenRecord, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type recordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) Create(ctx context.Context, record *RefreshTokenRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create refresh token record: %w", err)
	}
	return nil
}

func (r *recordRepository) ReadByTokenHash(ctx context.Context, tokenHash string) (*RefreshTokenRecord, error) {
	var record RefreshTokenRecord
	err := r.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		First(&record).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFoundByGivenToken
	}
	if err != nil {
		return nil, ErrUnresponsiveDatabase
	}
	return &record, nil
}

// DeleteByTokenHash reports how many rows were removed; zero is not an error.
func (r *recordRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("token_hash = ?", tokenHash).
		Delete(&RefreshTokenRecord{})
	if res.Error != nil {
		return 0, ErrUnresponsiveDatabase
	}
	return res.RowsAffected, nil
}

func (r *recordRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&RefreshTokenRecord{})
	if res.Error != nil {
		return 0, ErrUnresponsiveDatabase
	}
	return res.RowsAffected, nil
}
