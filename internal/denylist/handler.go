package denylist

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mehmetcc/zerodrop/internal/authentication"
)

// AddCommandRequest is the payload for denying a command.
type AddCommandRequest struct {
	Command string `json:"command" binding:"required"`
}

// AddQueryRequest is the payload for denying a query.
type AddQueryRequest struct {
	Query string `json:"query" binding:"required"`
}

// EntryCreatedResponse returns the ID of a new denylist entry.
type EntryCreatedResponse struct {
	Message string `json:"message"`
	ID      uint   `json:"id"`
}

// DenylistHandler handles the admin endpoints that extend the denylist.
type DenylistHandler struct {
	router  *gin.RouterGroup
	service DenylistService
	logger  *zap.Logger
}

// NewDenylistHandler registers admin endpoints on the given router group. The
// group must already run authentication.AuthMiddleware.
func NewDenylistHandler(router *gin.RouterGroup, service DenylistService, logger *zap.Logger) *DenylistHandler {
	h := &DenylistHandler{router: router, service: service, logger: logger}
	h.router.POST("/addDeniedCommand", h.AddDeniedCommand)
	h.router.POST("/addDeniedQuery", h.AddDeniedQuery)
	return h
}

// AddDeniedCommand godoc
// @Summary      Deny a command
// @Description  Add a command to the denylist. Matching is case-insensitive.
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      AddCommandRequest  true  "Command to deny"
// @Success      201      {object}  EntryCreatedResponse
// @Failure      400      {object}  map[string]string
// @Failure      403      {object}  map[string]string
// @Failure      409      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /admin/addDeniedCommand [post]
func (h *DenylistHandler) AddDeniedCommand(c *gin.Context) {
	var req AddCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid 'command' field"})
		return
	}
	h.addEntry(c, KindCommand, req.Command, "Command")
}

// AddDeniedQuery godoc
// @Summary      Deny a query
// @Description  Add a query to the denylist. Matching is exact.
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      AddQueryRequest  true  "Query to deny"
// @Success      201      {object}  EntryCreatedResponse
// @Failure      400      {object}  map[string]string
// @Failure      403      {object}  map[string]string
// @Failure      409      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /admin/addDeniedQuery [post]
func (h *DenylistHandler) AddDeniedQuery(c *gin.Context) {
	var req AddQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid 'query' field"})
		return
	}
	h.addEntry(c, KindQuery, req.Query, "Query")
}

func (h *DenylistHandler) addEntry(c *gin.Context, kind Kind, text, label string) {
	// The admin identity comes from the verified token only, never the body.
	claims, ok := authentication.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	id, err := h.service.AddEntry(c.Request.Context(), kind, text, claims.AccountID)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, EntryCreatedResponse{Message: label + " added", ID: id})
	case errors.Is(err, ErrEmptyInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty " + string(kind)})
	case errors.Is(err, ErrTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": label + " too long"})
	case errors.Is(err, ErrInvalidFormat):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid command format"})
	case errors.Is(err, ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
	case errors.Is(err, ErrDuplicateEntry):
		c.JSON(http.StatusConflict, gin.H{"error": label + " already exists in denied list"})
	default:
		h.logger.Error("AddEntry service failed", zap.String("kind", string(kind)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal Server Error"})
	}
}
