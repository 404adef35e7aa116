package account

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var ErrHashingPasswordFailed = errors.New("hashing password failed")

type AccountService interface {
	CreateAccount(ctx context.Context, identifier, password string) (*Account, error)
	ReadAccountByIdentifier(ctx context.Context, identifier string) (*Account, error)
	ReadAccountByID(ctx context.Context, id uint) (*Account, error)
}

type accountService struct {
	repo   AccountRepository
	logger *zap.Logger
}

func NewAccountService(repo AccountRepository, logger *zap.Logger) AccountService {
	return &accountService{
		repo:   repo,
		logger: logger,
	}
}

func (s *accountService) CreateAccount(ctx context.Context, identifier, password string) (*Account, error) {
	identifier = NormalizeIdentifier(identifier)
	if err := CheckIdentifier(identifier); err != nil {
		s.logger.Warn("invalid identifier", zap.Error(err))
		return nil, err
	}
	if err := CheckPassword(password); err != nil {
		s.logger.Warn("invalid password", zap.String("identifier", identifier), zap.Error(err))
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("failed to hash password", zap.Error(err))
		return nil, ErrHashingPasswordFailed
	}

	account := NewAccount(identifier, string(hashed))
	if err := s.repo.Create(ctx, account); err != nil {
		s.logger.Warn("failed to create account", zap.String("identifier", identifier), zap.Error(err))
		return nil, err
	}
	s.logger.Info("account created", zap.Uint("account_id", account.ID), zap.String("identifier", identifier))
	return account, nil
}

func (s *accountService) ReadAccountByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	account, err := s.repo.ReadByIdentifier(ctx, NormalizeIdentifier(identifier))
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			s.logger.Error("failed to get account by identifier", zap.String("identifier", identifier), zap.Error(err))
		}
		return nil, err
	}
	return account, nil
}

func (s *accountService) ReadAccountByID(ctx context.Context, id uint) (*Account, error) {
	account, err := s.repo.ReadByID(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			s.logger.Error("failed to get account by ID", zap.Uint("id", id), zap.Error(err))
		}
		return nil, err
	}
	return account, nil
}
