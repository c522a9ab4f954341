package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joy095/carrental/utils"
	"github.com/joy095/carrental/utils/jwt_parse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("auth-test-secret")

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(secret), func(c *gin.Context) {
		p, err := utils.GetPrincipal(c)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, string(p.Role))
	})
	r.GET("/admin", AuthMiddleware(secret), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/admin-unguarded", RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func request(t *testing.T, r *gin.Engine, path, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(t *testing.T, role utils.Role) string {
	t.Helper()
	token, err := jwt_parse.IssueToken(utils.Principal{ID: uuid.New(), Role: role}, secret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	w := request(t, r, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(t, r, "/me", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), utils.KindUnauthorized)

	w = request(t, r, "/me", bearer(t, utils.RoleUser))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user", w.Body.String())
}

func TestRequireAdmin(t *testing.T) {
	r := newRouter()

	w := request(t, r, "/admin", bearer(t, utils.RoleUser))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), utils.KindForbidden)

	w = request(t, r, "/admin", bearer(t, utils.RoleAdmin))
	assert.Equal(t, http.StatusOK, w.Code)

	w = request(t, r, "/admin-unguarded", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
