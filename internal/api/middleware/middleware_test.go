package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"

	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Logger(logger.NewNop()), Recovery(logger.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	r.GET("/gone", func(c *gin.Context) { panic(fmt.Errorf("write: %w", syscall.EPIPE)) })
	r.GET("/ok/:id", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"id": c.Param("id")}) })
	return r
}

func TestRecoveryReturnsJSONError(t *testing.T) {
	before := testutil.ToFloat64(metrics.HTTPPanics)

	rec := httptest.NewRecorder()
	newRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error": "Internal server error"}`, rec.Body.String())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HTTPPanics))
}

func TestRecoveryIgnoresBrokenConnections(t *testing.T) {
	before := testutil.ToFloat64(metrics.HTTPPanics)

	rec := httptest.NewRecorder()
	newRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gone", nil))

	assert.Empty(t, rec.Body.String())
	assert.Equal(t, before, testutil.ToFloat64(metrics.HTTPPanics))
}

func TestLoggerCountsByRouteTemplate(t *testing.T) {
	counter := metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/ok/:id", "200")
	before := testutil.ToFloat64(counter)

	r := newRouter()
	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok/"+id, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}
