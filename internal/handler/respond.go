package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"planbook/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError distinguishes filter validation failures (caller's fault)
// from storage failures.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrInvalidDate) || errors.Is(err, model.ErrInvalidTime) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Error("store operation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "storage error")
}

func pathInt64(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return v, err == nil
}
