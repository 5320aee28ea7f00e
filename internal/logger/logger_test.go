package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestsLogsRouteNotPath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Requests(zerolog.New(&buf)))
	r.GET("/a/:token", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/a/secret-token", nil))

	assert.NotContains(t, buf.String(), "secret-token")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "/a/:token", line["route"])
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "http", line["component"])
	assert.EqualValues(t, http.StatusNotFound, line["status_code"])
}

func TestRequestsUnmatchedRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(Requests(zerolog.New(&buf)))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.Contains(t, buf.String(), `"route":"(no route)"`)
}
