package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	errs "github.com/matzehuels/dbtlineage/pkg/errors"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	code := errs.GetCode(err)
	if code == "" {
		code = errs.ErrCodeInternal
	}
	msg := errs.UserMessage(err)
	if status >= 500 {
		s.logger.Error("handler failed", "path", r.URL.Path, "err", err)
		if code == errs.ErrCodeInternal {
			msg = "internal server error"
		}
	}
	writeJSON(w, status, errorBody{
		Error:     string(code),
		Message:   msg,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

func writeBytes(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
