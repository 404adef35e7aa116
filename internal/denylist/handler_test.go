package denylist

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mehmetcc/zerodrop/internal/authentication"
)

func newDenylistRouter(f *fixture, adminID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/admin", func(c *gin.Context) {
		if adminID != 0 {
			c.Set(authentication.ContextClaimsKey, &authentication.Claims{AccountID: adminID, Identifier: "admin"})
		}
		c.Next()
	})
	NewDenylistHandler(group, f.service, zap.NewNop())
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAddDeniedCommandHandler(t *testing.T) {
	f := newFixture(t)
	r := newDenylistRouter(f, f.adminID)

	w := post(r, "/admin/addDeniedCommand", `{"command":"rm -rf /"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"Command added"`)

	w = post(r, "/admin/addDeniedCommand", `{"command":"RM -RF /"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"Command already exists in denied list"}`, w.Body.String())

	w = post(r, "/admin/addDeniedCommand", `{"command":"`+strings.Repeat("a", MAX_COMMAND_LENGTH+1)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(r, "/admin/addDeniedCommand", `{"command":"ls\nrm"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Invalid command format"}`, w.Body.String())

	w = post(r, "/admin/addDeniedCommand", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAddDeniedQueryHandler(t *testing.T) {
	f := newFixture(t)
	r := newDenylistRouter(f, f.adminID)

	w := post(r, "/admin/addDeniedQuery", `{"query":"DROP TABLE accounts"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"message":"Query added"`)

	w = post(r, "/admin/addDeniedQuery", `{"query":"  DROP TABLE accounts  "}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error":"Query already exists in denied list"}`, w.Body.String())
}

func TestAddDeniedHandler_UnknownAdmin(t *testing.T) {
	f := newFixture(t)

	w := post(newDenylistRouter(f, f.adminID+100), "/admin/addDeniedCommand", `{"command":"reboot"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"Access denied"}`, w.Body.String())

	w = post(newDenylistRouter(f, 0), "/admin/addDeniedCommand", `{"command":"reboot"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
