package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	assert.Equal(t, &Pagination{Page: 1, PerPage: 20, TotalItems: 0, TotalPages: 0}, NewPagination(1, 20, 0))
	assert.Equal(t, &Pagination{Page: 2, PerPage: 20, TotalItems: 41, TotalPages: 3}, NewPagination(2, 20, 41))
	assert.Equal(t, 1, NewPagination(1, 20, 20).TotalPages)
}

func TestEnvelopeCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/missing", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrAttemptNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, ErrAttemptNotFound, body.Error.Code)
	assert.Equal(t, GetMessage(ErrAttemptNotFound), body.Error.Message)
	assert.Equal(t, "req-123", body.Metadata.RequestID)
}

func TestWantsJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := map[string]bool{
		"application/json":                true,
		"text/html,application/xhtml+xml": false,
		"":                                false,
		"*/*":                             false,
	}
	for accept, want := range tests {
		t.Run(accept, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if accept != "" {
				c.Request.Header.Set("Accept", accept)
			}
			assert.Equal(t, want, WantsJSON(c))
		})
	}
}

func TestRequestIDReplacesUnsafeHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, RequestID(c)) })

	tests := map[string]bool{
		"abc-123_x.y":                  true,
		"has space":                    false,
		"line\nbreak":                  false,
		string(make([]byte, 65)):       false,
		"0123456789012345678901234567": true,
	}
	for header, kept := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header["X-Request-Id"] = []string{header}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if kept {
			assert.Equal(t, header, w.Body.String())
		} else {
			assert.NotEqual(t, header, w.Body.String())
			assert.Len(t, w.Body.String(), 36)
		}
		assert.Equal(t, w.Body.String(), w.Header().Get("X-Request-ID"))
	}
}
