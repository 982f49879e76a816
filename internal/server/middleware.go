package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the id that ties a response to its log lines. An
// id supplied by the caller is kept.
const RequestIDHeader = "X-Request-ID"

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// requestID reads the id back from the response headers set above.
func requestID(w http.ResponseWriter) string {
	return w.Header().Get(RequestIDHeader)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		level := slog.LevelDebug
		if sw.status >= 500 {
			level = slog.LevelWarn
		}
		slog.Log(r.Context(), level, "API request",
			"request_id", requestID(w),
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).String(),
		)
	})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("Panic in API handler", "request_id", requestID(w), "error", err,
					"path", r.URL.Path, "stack", string(debug.Stack()))
				jsonError(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

// jsonError writes the error envelope, echoing the request id so a caller can
// quote it when reporting a failure.
func jsonError(w http.ResponseWriter, message string, status int) {
	body := map[string]any{"success": false, "error": message}
	if id := requestID(w); id != "" {
		body["requestId"] = id
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// fail logs err and writes it with the status its kind maps to.
func fail(w http.ResponseWriter, op string, err error) {
	status := errorStatus(err)
	if status >= 500 {
		slog.Error("API request failed", "request_id", requestID(w), "op", op, "error", err)
	} else {
		slog.Debug("API request rejected", "request_id", requestID(w), "op", op, "status", status, "error", err)
	}
	jsonError(w, err.Error(), status)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
