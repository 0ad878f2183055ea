package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/yourorg/botfleet/internal/domain"
)

// envelope is the uniform response shape. Extra fields ride along in Data.
type envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"-"`
}

func (e envelope) MarshalJSON() ([]byte, error) {
	out := map[string]any{"success": e.Success}
	if e.Message != "" {
		out["message"] = e.Message
	}
	for k, v := range e.Data {
		out[k] = v
	}
	return json.Marshal(out)
}

func writeJSON(w http.ResponseWriter, status int, message string, data map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: status < 400,
		Message: message,
		Data:    data,
	})
}

// statusForError maps domain error kinds to HTTP statuses. Collaborator
// failures surface as 502 so clients can tell a local fault from an
// upstream one.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCollaborator):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrProcessControl):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusForError(err)
	if status >= 500 {
		logger.Error("request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, err.Error(), nil)
}
