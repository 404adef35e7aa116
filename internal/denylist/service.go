package denylist

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/mehmetcc/zerodrop/internal/account"
)

var (
	ErrUnknownKind   = errors.New("unknown denylist kind")
	ErrEmptyInput    = errors.New("empty input")
	ErrTooLong       = errors.New("input too long")
	ErrInvalidFormat = errors.New("invalid command format")
	ErrAccessDenied  = errors.New("access denied")
)

type DenylistService interface {
	// IsAllowed reports whether text is absent from the denylist of kind.
	IsAllowed(ctx context.Context, kind Kind, text string) (bool, error)
	// AddEntry denies text for kind on behalf of the account adminID.
	AddEntry(ctx context.Context, kind Kind, text string, adminID uint) (uint, error)
}

type denylistService struct {
	repo     EntryRepository
	accounts account.AccountService
	logger   *zap.Logger
}

func NewDenylistService(repo EntryRepository, accounts account.AccountService, logger *zap.Logger) DenylistService {
	return &denylistService{
		repo:     repo,
		accounts: accounts,
		logger:   logger,
	}
}

func (s *denylistService) IsAllowed(ctx context.Context, kind Kind, text string) (bool, error) {
	if !kind.Valid() {
		return false, ErrUnknownKind
	}
	denied, err := s.repo.Exists(ctx, kind, kind.Normalize(text))
	if err != nil {
		s.logger.Error("denylist lookup failed", zap.String("kind", string(kind)), zap.Error(err))
		return false, err
	}
	return !denied, nil
}

func (s *denylistService) AddEntry(ctx context.Context, kind Kind, text string, adminID uint) (uint, error) {
	if !kind.Valid() {
		return 0, ErrUnknownKind
	}
	if err := validate(kind, text); err != nil {
		return 0, err
	}

	admin, err := s.accounts.ReadAccountByID(ctx, adminID)
	if errors.Is(err, account.ErrAccountNotFound) {
		s.logger.Warn("denylist entry rejected, unknown admin", zap.Uint("admin_id", adminID))
		return 0, ErrAccessDenied
	}
	if err != nil {
		return 0, err
	}

	entry := NewEntry(kind, text, admin.ID)
	exists, err := s.repo.Exists(ctx, kind, entry.Normalized)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, ErrDuplicateEntry
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		if !errors.Is(err, ErrDuplicateEntry) {
			s.logger.Error("failed to create denylist entry", zap.String("kind", string(kind)), zap.Error(err))
		}
		return 0, err
	}

	s.logger.Info("denylist entry added",
		zap.Uint("id", entry.ID),
		zap.String("kind", string(kind)),
		zap.String("text", entry.Text),
		zap.Uint("admin_id", admin.ID),
		zap.String("admin", admin.Identifier),
	)
	return entry.ID, nil
}

// validate checks raw caller input. Line breaks are rejected anywhere in a
// command, including ones trimming would have removed.
func validate(kind Kind, raw string) error {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ErrEmptyInput
	}
	if utf8.RuneCountInString(text) > kind.MaxLength() {
		return ErrTooLong
	}
	if kind == KindCommand && strings.ContainsAny(raw, "\r\n") {
		return ErrInvalidFormat
	}
	return nil
}
