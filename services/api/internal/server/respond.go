package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"bizassist/internal/util"
	"bizassist/pkg/ai"
	"bizassist/services/api/internal/app"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// errorBody is the JSON shape of every failed API response.
type errorBody struct {
	Error             string           `json:"error"`
	Message           string           `json:"message,omitempty"`
	Hint              string           `json:"hint,omitempty"`
	Details           any              `json:"details,omitempty"`
	SetupInstructions []string         `json:"setupInstructions,omitempty"`
	License           *app.LicenseInfo `json:"license,omitempty"`
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// decodeJSON reads a size-limited JSON body into dst and validates its
// struct tags. It writes the 400 response itself and reports false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, "invalid request")
			return false
		}
		details := make([]fieldError, 0, len(verrs))
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fieldError{Field: fe.Field(), Rule: fe.Tag()})
			fields = append(fields, fe.Field())
		}
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "validation_failed",
			Message: "invalid value for " + strings.Join(fields, ", "),
			Details: details,
		})
		return false
	}
	return true
}

// writeAppError maps the application error taxonomy onto HTTP responses.
// Unclassified errors are logged and reported as a bare 500.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr   *app.ValidationError
		aerr   *app.AuthError
		nferr  *app.NotFoundError
		cfgErr *app.ConfigurationError
	)
	switch {
	case errors.As(err, &verr):
		body := errorBody{Error: "validation_failed", Message: verr.Message}
		if verr.Field != "" {
			body.Details = []fieldError{{Field: verr.Field, Rule: "invalid"}}
		}
		writeJSON(w, http.StatusBadRequest, body)
	case errors.As(err, &aerr):
		status := http.StatusUnauthorized
		if aerr.License != nil {
			status = http.StatusForbidden
		}
		writeJSON(w, status, errorBody{Error: aerr.Code, Message: aerr.Message, License: aerr.License})
	case errors.As(err, &nferr):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: nferr.Error()})
	case errors.As(err, &cfgErr):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error:             "not_configured",
			Message:           cfgErr.Message,
			Hint:              cfgErr.Hint,
			SetupInstructions: cfgErr.SetupInstructions,
		})
	default:
		if perr, ok := ai.AsProviderError(err); ok {
			util.LoggerFromContext(r.Context()).Warn("provider call failed", "service", perr.Service, "status", perr.Status, "err", err)
			writeJSON(w, http.StatusBadGateway, errorBody{
				Error:   "provider_error",
				Message: perr.Message,
				Hint:    app.ProviderHint(perr),
				Details: map[string]any{"service": perr.Service, "status": perr.Status},
			})
			return
		}
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
