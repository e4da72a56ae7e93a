package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lu-zhengda/mailsweep/internal/store"
)

const contentTypeJSON = "application/json; charset=utf-8"

// httpError is an error carrying a status code and a client-facing message.
type httpError struct {
	Code    int
	Message string
	cause   error
}

func (e *httpError) Error() string { return e.Message }

func (e *httpError) Unwrap() error { return e.cause }

func errBadRequest(msg string) error {
	return &httpError{Code: http.StatusBadRequest, Message: msg}
}

func errBadRequestWrap(msg string, cause error) error {
	return &httpError{Code: http.StatusBadRequest, Message: msg + ": " + cause.Error(), cause: cause}
}

func errNotFound(msg string) error {
	return &httpError{Code: http.StatusNotFound, Message: msg}
}

func errConflict(msg string) error {
	return &httpError{Code: http.StatusConflict, Message: msg}
}

// handlerFunc is an http.HandlerFunc that reports failure by returning an error.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// wrap adapts h, turning returned errors into JSON error responses.
func (s *Server) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		var he *httpError
		switch {
		case errors.As(err, &he):
			s.log.Warn("client error", "method", r.Method, "path", r.URL.Path, "code", he.Code, "msg", he.Message)
			respondJSON(w, he.Code, errorBody{Error: he.Message})
		case errors.Is(err, store.ErrNotFound):
			s.log.Info("not found", "method", r.Method, "path", r.URL.Path, "error", err)
			respondJSON(w, http.StatusNotFound, errorBody{Error: "resource not found"})
		default:
			s.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
		}
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errBadRequestWrap("invalid request payload", err)
	}
	return nil
}
