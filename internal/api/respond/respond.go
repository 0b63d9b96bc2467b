// Package respond writes JSON bodies and maps error kinds to status codes.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"github.com/mind-engage/mindengage-exams/internal/errs"
)

type errorBody struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func Status(k errs.Kind) int {
	switch k {
	case errs.Validation:
		return http.StatusBadRequest
	case errs.Unauthorized:
		return http.StatusUnauthorized
	case errs.Forbidden:
		return http.StatusForbidden
	case errs.Conflict:
		return http.StatusConflict
	case errs.NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error answers with the status matching err's kind. Internal errors are
// logged and answered with a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := errs.KindOf(err)
	status := Status(kind)
	if kind == errs.Internal {
		hlog.FromRequest(r).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		JSON(w, status, errorBody{Message: "internal server error"})
		return
	}
	e := errs.As(err)
	body := errorBody{Message: e.Message, Fields: e.Fields}
	if body.Message == "" {
		body.Message = kind.String()
	}
	if kind == errs.Forbidden {
		body = errorBody{Message: "forbidden"}
	}
	JSON(w, status, body)
}
