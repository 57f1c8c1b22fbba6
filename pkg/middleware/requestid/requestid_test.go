package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serve(t *testing.T, incoming string) (*httptest.ResponseRecorder, string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var fromGin, fromCtx string
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		fromGin = Value(c)
		fromCtx = FromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if incoming != "" {
		req.Header.Set("X-Request-ID", incoming)
	}
	r.ServeHTTP(rec, req)
	return rec, fromGin, fromCtx
}

func TestReusesCallerRequestID(t *testing.T) {
	rec, fromGin, fromCtx := serve(t, "trace-123")
	assert.Equal(t, "trace-123", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "trace-123", fromGin)
	assert.Equal(t, "trace-123", fromCtx)
}

func TestGeneratesIDWhenMissingOrOversized(t *testing.T) {
	rec, fromGin, _ := serve(t, "")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), fromGin)

	rec, _, _ = serve(t, strings.Repeat("x", 200))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}
