package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError_FillsTimestamp(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusNotFound, ErrorResponse{Error: "Not found", Message: "ZIP code not found"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Not found", body["error"])
	assert.NotEmpty(t, body["timestamp"])
	assert.NotContains(t, body, "details")
	assert.NotContains(t, body, "stack")
	assert.NotContains(t, body, "retryAfter")
}

func TestAddServerTiming(t *testing.T) {
	rec := httptest.NewRecorder()
	AddServerTiming(rec, "dbread", 12300*time.Microsecond)
	AddServerTiming(rec, "bad name", time.Millisecond)

	assert.Equal(t, []string{"dbread;dur=12.3", "bad_name;dur=1.0"}, rec.Header().Values("Server-Timing"))
}

func TestTimestampIsUTC(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	ts := Timestamp(time.Date(2024, 1, 2, 3, 4, 5, 0, loc))
	assert.Equal(t, "2024-01-02T08:04:05Z", ts)
}
