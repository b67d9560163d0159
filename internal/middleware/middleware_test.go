package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/GoPolymarket/polyfactory/internal/model"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCaller = common.HexToAddress("0x0000000000000000000000000000000000000a11")

func init() {
	gin.SetMode(gin.TestMode)
}

func withCaller(c *gin.Context) {
	c.Set(ContextCallerKey, testCaller)
	c.Next()
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	calls := 0
	r := gin.New()
	r.POST("/x", withCaller, IdempotencyMiddleware(NewInMemIdempotencyStore()), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusCreated, gin.H{"n": calls})
	})

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(HeaderIdempotencyKey, "k1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := do()
	second := do()
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	assert.Equal(t, 1, calls)
}

func TestIdempotencyReleasesOnServerError(t *testing.T) {
	calls := 0
	r := gin.New()
	r.POST("/x", withCaller, IdempotencyMiddleware(NewInMemIdempotencyStore()), func(c *gin.Context) {
		calls++
		c.Status(http.StatusInternalServerError)
	})
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set(HeaderIdempotencyKey, "k1")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}

func TestRateLimitPerCaller(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/x", withCaller, RateLimitMiddleware(service.NewCallerLimiter(0.001, 1)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestReadOnlyBlocksWrites(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler(), ReadOnlyMiddleware(true))
	r.GET("/v1/markets", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/v1/markets", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.POST("/v1/auth/login", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/v1/markets", http.StatusOK},
		{http.MethodPost, "/v1/markets", http.StatusServiceUnavailable},
		{http.MethodPost, "/v1/auth/login", http.StatusOK},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.want, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestErrorHandlerMapsDomainErrors(t *testing.T) {
	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/x", func(c *gin.Context) {
		c.Error(fmt.Errorf("claim: %w", model.ErrNothingToClaim))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusGone, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, model.ErrNothingToClaim.Code, body["code"])
	assert.Equal(t, string(model.KindExhausted), body["kind"])
}

func TestRequestIDHeader(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(HeaderRequestID))
	assert.Equal(t, "abc", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
}
