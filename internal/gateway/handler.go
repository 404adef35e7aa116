package gateway

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mehmetcc/zerodrop/internal/authentication"
)

// CommandRequest is the payload for running a shell command.
type CommandRequest struct {
	Cmd string `json:"cmd"`
}

// CommandResponse carries the trimmed standard output of a command.
type CommandResponse struct {
	Output string `json:"output"`
}

// QueryRequest is the payload for running SQL.
type QueryRequest struct {
	Query string `json:"query" form:"query"`
}

// ExecResult reports the effect of a statement that returns no rows.
type ExecResult struct {
	RowsAffected int64 `json:"rowsAffected"`
}

// ExecResponse wraps ExecResult.
type ExecResponse struct {
	Result ExecResult `json:"result"`
}

// GatewayHandler serves the command and query execution endpoints.
type GatewayHandler struct {
	router  *gin.RouterGroup
	service GatewayService
	logger  *zap.Logger
}

// NewGatewayHandler registers execution endpoints on the given router group.
// The group must already run authentication.AuthMiddleware.
func NewGatewayHandler(router *gin.RouterGroup, service GatewayService, logger *zap.Logger) *GatewayHandler {
	h := &GatewayHandler{router: router, service: service, logger: logger}
	h.router.POST("/cmd", h.RunCommand)
	h.router.POST("/query", h.RunQuery)
	h.router.GET("/query", h.RunQueryGet)
	return h
}

// RunCommand godoc
// @Summary      Run a command
// @Description  Execute a shell command on the host unless it is denylisted
// @Tags         run
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      CommandRequest  true  "Command"
// @Success      200      {object}  CommandResponse
// @Failure      400      {object}  map[string]string
// @Failure      401      {object}  map[string]string
// @Failure      403      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /run/cmd [post]
func (h *GatewayHandler) RunCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No command provided"})
		return
	}
	claims, _ := authentication.ClaimsFromContext(c)

	output, err := h.service.ExecuteCommand(c.Request.Context(), req.Cmd, claims)
	var exitErr *NonZeroExitError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, CommandResponse{Output: output})
	case errors.Is(err, ErrEmptyInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No command provided"})
	case errors.Is(err, ErrBlocked):
		c.JSON(http.StatusForbidden, gin.H{"error": "Command is blocked"})
	case errors.Is(err, ErrTimeout):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Command timed out"})
	case errors.As(err, &exitErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": exitErr.Error()})
	default:
		h.logger.Error("ExecuteCommand service failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// RunQuery godoc
// @Summary      Run a query
// @Description  Execute literal SQL unless it is denylisted. Row-producing statements return an array of rows.
// @Tags         run
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      QueryRequest  true  "Query"
// @Success      200      {array}   object
// @Success      200      {object}  ExecResponse
// @Failure      400      {object}  map[string]string
// @Failure      401      {object}  map[string]string
// @Failure      403      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /run/query [post]
func (h *GatewayHandler) RunQuery(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No query provided"})
		return
	}
	h.runQuery(c, req.Query)
}

// RunQueryGet godoc
// @Summary      Run a query
// @Description  Same as POST /run/query with the SQL in the query string
// @Tags         run
// @Produce      json
// @Security     BearerAuth
// @Param        query  query     string  true  "SQL text"
// @Success      200    {array}   object
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Failure      403    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Router       /run/query [get]
func (h *GatewayHandler) RunQueryGet(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No query provided"})
		return
	}
	h.runQuery(c, req.Query)
}

func (h *GatewayHandler) runQuery(c *gin.Context, query string) {
	claims, _ := authentication.ClaimsFromContext(c)

	result, err := h.service.ExecuteQuery(c.Request.Context(), query, claims)
	switch {
	case err == nil && result.ReturnsRows:
		c.JSON(http.StatusOK, result.Rows)
	case err == nil:
		c.JSON(http.StatusOK, ExecResponse{Result: ExecResult{RowsAffected: result.RowsAffected}})
	case errors.Is(err, ErrEmptyInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "No query provided"})
	case errors.Is(err, ErrBlocked):
		c.JSON(http.StatusForbidden, gin.H{"error": "Query is blocked"})
	case errors.Is(err, ErrDatabase):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		h.logger.Error("ExecuteQuery service failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
