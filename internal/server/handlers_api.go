package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/thinkscotty/prophet/internal/ai"
	"github.com/thinkscotty/prophet/internal/questions"
	"github.com/thinkscotty/prophet/internal/scheduler"
)

const maxBodyBytes = 1 << 20

func errorStatus(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, questions.ErrNoPosts), errors.Is(err, questions.ErrInvalidSnapshotName):
		return http.StatusBadRequest
	case errors.Is(err, ai.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// decodeBody decodes an optional JSON body. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
