package authentication

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mehmetcc/zerodrop/internal/account"
)

// CredentialsRequest is the payload for logging in and registering.
type CredentialsRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// RefreshRequest is the payload for refreshing an access token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutRequest is the payload for logging out.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID         uint   `json:"id"`
	Identifier string `json:"identifier"`
}

// SessionResponse contains both tokens and the authenticated user.
type SessionResponse struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         UserResponse `json:"user"`
}

// AccessTokenResponse contains a freshly issued access token.
type AccessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

// MessageResponse carries a human readable acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// AuthHandler handles authentication-related HTTP endpoints.
type AuthHandler struct {
	router  *gin.RouterGroup
	service AuthenticationService
	logger  *zap.Logger
}

// NewAuthHandler registers auth endpoints on the given router group.
func NewAuthHandler(router *gin.RouterGroup, service AuthenticationService, logger *zap.Logger) *AuthHandler {
	h := &AuthHandler{router: router, service: service, logger: logger}
	h.router.POST("/login", h.Login)
	h.router.POST("/register", h.Register)
	h.router.POST("/refresh", h.Refresh)
	h.router.POST("/logout", h.Logout)
	return h
}

func newSessionResponse(pair *TokenPair, acc *account.Account) SessionResponse {
	return SessionResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         UserResponse{ID: acc.ID, Identifier: acc.Identifier},
	}
}

// Login godoc
// @Summary      Login
// @Description  Authenticate an account and issue an access/refresh token pair
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      CredentialsRequest  true  "Login credentials"
// @Success      200      {object}  SessionResponse
// @Failure      400      {object}  map[string]string
// @Failure      401      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing identifier or password"})
		return
	}
	pair, acc, err := h.service.Issue(c.Request.Context(), req.Identifier, req.Password)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, newSessionResponse(pair, acc))
	case errors.Is(err, ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing identifier or password"})
	case errors.Is(err, ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	default:
		h.logger.Error("Login service failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
}

// Register godoc
// @Summary      Register
// @Description  Create an account and issue an access/refresh token pair
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      CredentialsRequest  true  "Account credentials"
// @Success      201      {object}  SessionResponse
// @Failure      400      {object}  map[string]string
// @Failure      409      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing identifier or password"})
		return
	}
	pair, acc, err := h.service.Register(c.Request.Context(), req.Identifier, req.Password)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, newSessionResponse(pair, acc))
	case account.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, account.ErrIdentifierTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Identifier already exists"})
	default:
		h.logger.Error("Register service failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
}

// Refresh godoc
// @Summary      Refresh Token
// @Description  Exchange a stored refresh token for a new access token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      RefreshRequest  true  "Refresh token payload"
// @Success      200      {object}  AccessTokenResponse
// @Failure      401      {object}  map[string]string
// @Failure      403      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /auth/refresh [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token required"})
		return
	}
	access, err := h.service.Refresh(c.Request.Context(), req.RefreshToken)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, AccessTokenResponse{AccessToken: access})
	case errors.Is(err, ErrUnknownOrExpiredRefreshToken):
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid or expired refresh token"})
	case errors.Is(err, ErrInvalidSignature):
		c.JSON(http.StatusForbidden, gin.H{"error": "Invalid refresh token"})
	default:
		h.logger.Error("Refresh service failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
}

// Logout godoc
// @Summary      Logout
// @Description  Revoke a refresh token. Revoking an unknown token succeeds.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      LogoutRequest  true  "Logout payload"
// @Success      200      {object}  MessageResponse
// @Failure      400      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid logout payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Refresh token required"})
		return
	}
	if err := h.service.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
		h.logger.Error("Logout service failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Logged out"})
}
