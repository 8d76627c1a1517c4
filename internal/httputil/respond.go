package httputil

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Timestamp is the envelope timestamp format.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func WriteJSON(w http.ResponseWriter, v any) {
	WriteJSONStatus(w, http.StatusOK, v)
}

func WriteJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[httputil] encode response: %v", err)
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	Details    any    `json:"details,omitempty"`
	RetryAfter *int   `json:"retryAfter,omitempty"`
	Timestamp  string `json:"timestamp"`
	Stack      string `json:"stack,omitempty"`
}

// WriteError writes an error envelope. Timestamp is filled in when empty.
func WriteError(w http.ResponseWriter, status int, body ErrorResponse) {
	if body.Timestamp == "" {
		body.Timestamp = Timestamp(time.Now())
	}
	WriteJSONStatus(w, status, body)
}

// AddServerTiming appends a Server-Timing entry per name/duration pair.
func AddServerTiming(w http.ResponseWriter, name string, d time.Duration) {
	ms := float64(d.Microseconds()) / 1000
	w.Header().Add("Server-Timing", fmt.Sprintf("%s;dur=%.1f", sanitizeMetric(name), ms))
}

func sanitizeMetric(name string) string {
	return strings.Map(func(r rune) rune {
		if r == ';' || r == ',' || r == ' ' {
			return '_'
		}
		return r
	}, name)
}
