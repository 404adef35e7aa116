package authentication

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mehmetcc/zerodrop/internal/account"
	"github.com/mehmetcc/zerodrop/internal/utils"
)

var (
	ErrValidation                   = errors.New("identifier and password are required")
	ErrInvalidCredentials           = errors.New("invalid credentials")
	ErrUnknownOrExpiredRefreshToken = errors.New("unknown or expired refresh token")
	ErrInvalidSignature             = errors.New("refresh token signature mismatch")
	ErrMissingToken                 = errors.New("missing access token")
	ErrExpiredOrInvalidToken        = errors.New("expired or invalid access token")
	ErrLoginFailed                  = errors.New("login failed")
)

type AuthenticationService interface {
	Issue(ctx context.Context, identifier, password string) (*TokenPair, *account.Account, error)
	Register(ctx context.Context, identifier, password string) (*TokenPair, *account.Account, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Revoke(ctx context.Context, refreshToken string) error
	Authenticate(authorizationHeader string) (*Claims, error)
	SweepExpired(ctx context.Context) (int64, error)
}

type authenticationService struct {
	accountService  account.AccountService
	recordRepo      RecordRepository
	logger          *zap.Logger
	accessSecret    string
	refreshSecret   string
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	now             func() time.Time
}

func NewAuthenticationService(
	accountService account.AccountService,
	recordRepo RecordRepository,
	logger *zap.Logger,
	cfg *utils.TokenConfig,
) AuthenticationService {
	return &authenticationService{
		accountService:  accountService,
		recordRepo:      recordRepo,
		logger:          logger,
		accessSecret:    cfg.AccessTokenSecret,
		refreshSecret:   cfg.RefreshTokenSecret,
		accessTokenTTL:  cfg.AccessTokenTTL,
		refreshTokenTTL: cfg.RefreshTokenTTL,
		now:             time.Now,
	}
}

func (a *authenticationService) Issue(ctx context.Context, identifier, password string) (*TokenPair, *account.Account, error) {
	identifier = account.NormalizeIdentifier(identifier)
	if identifier == "" || password == "" {
		return nil, nil, ErrValidation
	}

	acc, err := a.accountService.ReadAccountByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			// Equalize timing with the password mismatch path.
			_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
			a.logger.Info("login rejected", zap.String("identifier", identifier), zap.String("reason", "unknown identifier"))
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, ErrLoginFailed
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.Password), []byte(password)) != nil {
		a.logger.Info("login rejected", zap.String("identifier", identifier), zap.String("reason", "password mismatch"))
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := a.issuePair(ctx, acc)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Info("login succeeded", zap.Uint("account_id", acc.ID), zap.String("identifier", acc.Identifier))
	return pair, acc, nil
}

func (a *authenticationService) Register(ctx context.Context, identifier, password string) (*TokenPair, *account.Account, error) {
	acc, err := a.accountService.CreateAccount(ctx, identifier, password)
	if err != nil {
		return nil, nil, err
	}
	pair, err := a.issuePair(ctx, acc)
	if err != nil {
		return nil, nil, err
	}
	return pair, acc, nil
}

func (a *authenticationService) issuePair(ctx context.Context, acc *account.Account) (*TokenPair, error) {
	// 1) Issue Access Token
	accessJWT, _, err := utils.IssueAccessToken(acc.ID, acc.Identifier, a.accessSecret, a.accessTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	// 2) Issue Refresh Token (JWT)
	refreshJWT, expiresAt, err := utils.IssueRefreshToken(acc.ID, uuid.NewString(), a.refreshSecret, a.refreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing refresh token: %w", err)
	}

	// 3) Store hashed token in DB
	rec := &RefreshTokenRecord{
		AccountID: acc.ID,
		TokenHash: hashToken(refreshJWT),
		ExpiresAt: expiresAt.UTC(),
	}
	if err := a.recordRepo.Create(ctx, rec); err != nil {
		a.logger.Error("failed to persist refresh token", zap.Uint("account_id", acc.ID), zap.Error(err))
		return nil, err
	}

	return &TokenPair{AccessToken: accessJWT, RefreshToken: refreshJWT}, nil
}

// Refresh trades a stored refresh token for a new access token. The refresh
// token itself stays valid until it expires or is revoked.
func (a *authenticationService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	hash := hashToken(refreshToken)

	// 1) Look up the stored record
	rec, err := a.recordRepo.ReadByTokenHash(ctx, hash)
	if errors.Is(err, ErrRecordNotFoundByGivenToken) {
		return "", ErrUnknownOrExpiredRefreshToken
	}
	if err != nil {
		return "", err
	}

	// 2) Check DB-record expiry
	if !a.now().Before(rec.ExpiresAt) {
		if _, err := a.recordRepo.DeleteByTokenHash(ctx, hash); err != nil {
			a.logger.Warn("failed to delete expired refresh token", zap.Uint("account_id", rec.AccountID), zap.Error(err))
		}
		return "", ErrUnknownOrExpiredRefreshToken
	}

	// 3) Verify signature
	claims, err := utils.VerifyRefreshSignature(refreshToken, a.refreshSecret)
	if err != nil || claims.AccountID != rec.AccountID {
		a.logger.Warn("refresh token signature rejected", zap.Uint("account_id", rec.AccountID), zap.Error(err))
		return "", ErrInvalidSignature
	}

	// 4) Issue new Access Token
	acc, err := a.accountService.ReadAccountByID(ctx, rec.AccountID)
	if errors.Is(err, account.ErrAccountNotFound) {
		return "", ErrUnknownOrExpiredRefreshToken
	}
	if err != nil {
		return "", err
	}
	accessJWT, _, err := utils.IssueAccessToken(acc.ID, acc.Identifier, a.accessSecret, a.accessTokenTTL)
	if err != nil {
		return "", fmt.Errorf("issuing access token: %w", err)
	}
	return accessJWT, nil
}

func (a *authenticationService) Revoke(ctx context.Context, refreshToken string) error {
	deleted, err := a.recordRepo.DeleteByTokenHash(ctx, hashToken(refreshToken))
	if err != nil {
		return err
	}
	if deleted > 0 {
		a.logger.Info("refresh token revoked")
	}
	return nil
}

func (a *authenticationService) Authenticate(authorizationHeader string) (*Claims, error) {
	if strings.TrimSpace(authorizationHeader) == "" {
		return nil, ErrMissingToken
	}
	parts := strings.Fields(authorizationHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, ErrExpiredOrInvalidToken
	}

	parsed, err := utils.ParseAccessToken(parts[1], a.accessSecret)
	if err != nil || parsed.AccountID == 0 || parsed.ExpiresAt == nil {
		return nil, ErrExpiredOrInvalidToken
	}
	return &Claims{
		AccountID:  parsed.AccountID,
		Identifier: parsed.Identifier,
		ExpiresAt:  parsed.ExpiresAt.Time,
	}, nil
}

func (a *authenticationService) SweepExpired(ctx context.Context) (int64, error) {
	return a.recordRepo.DeleteExpired(ctx, a.now().UTC())
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

var dummyHash = sync.OnceValue(func() []byte {
	hash, _ := bcrypt.GenerateFromPassword([]byte(uuid.NewString()), bcrypt.DefaultCost)
	return hash
})
