package account

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/mehmetcc/zerodrop/internal/utils"
)

var (
	ErrIdentifierTaken      = errors.New("identifier already registered")
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountNotCreated    = errors.New("account not created")
	ErrUnresponsiveDatabase = errors.New("error occurred during reading the accounts table")
)

type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	ReadByIdentifier(ctx context.Context, identifier string) (*Account, error)
	ReadByID(ctx context.Context, id uint) (*Account, error)
}

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Create(ctx context.Context, account *Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	if err != nil {
		if utils.IsUniqueViolation(err) {
			return ErrIdentifierTaken
		}
		return ErrAccountNotCreated
	}
	return nil
}

func (r *accountRepository) ReadByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	var account Account
	err := r.db.WithContext(ctx).
		Where("identifier = ?", identifier).
		First(&account).
		Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, ErrUnresponsiveDatabase
	}
	return &account, nil
}

func (r *accountRepository) ReadByID(ctx context.Context, id uint) (*Account, error) {
	var account Account
	err := r.db.WithContext(ctx).First(&account, id).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, ErrUnresponsiveDatabase
	}
	return &account, nil
}
