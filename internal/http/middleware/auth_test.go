package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"busreserve/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func bearer(t *testing.T, userID int64, role string) string {
	t.Helper()
	tok, err := services.AuthService{Secret: testSecret}.IssueToken(userID, role)
	require.NoError(t, err)
	return "Bearer " + tok
}

func staffRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.POST("/manual", AuthRequired(testSecret), RequireRoles("operator", "admin"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": UserID(c), "role": UserRole(c)})
	})
	r.GET("/open", AuthOptional(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": UserID(c), "clientId": ClientID(c)})
	})
	return r
}

func TestAuthRequiredWithRoles(t *testing.T) {
	r := staffRouter()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"operator", bearer(t, 7, "operator"), http.StatusOK},
		{"admin", bearer(t, 1, "ADMIN"), http.StatusOK},
		{"plain user", bearer(t, 5, "user"), http.StatusForbidden},
		{"no token", "", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"no role", bearer(t, 5, ""), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/manual", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestAuthOptional(t *testing.T) {
	r := staffRouter()

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer broken")
	req.Header.Set("X-Client-Id", " tab-1 ")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":0,"clientId":"tab-1"}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", bearer(t, 5, "user"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"userId":5,"clientId":""}`, w.Body.String())
}

func TestRequestID(t *testing.T) {
	r := staffRouter()

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 65))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}
