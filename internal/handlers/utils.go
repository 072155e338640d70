package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sweetshop/apiserver/internal/services"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message   string                `json:"message"`
	Errors    []services.FieldError `json:"errors,omitempty"`
	Available *int                  `json:"available,omitempty"`
	Requested *int                  `json:"requested,omitempty"`
}

// MessageResponse is returned by operations without a payload.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Message: message})
}

// writeServiceError maps a service error onto a status code and body.
// Unexpected errors are logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var (
		verr     *services.ValidationError
		stockErr *services.InsufficientStockError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "validation failed", Errors: verr.Fields})
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Message:   stockErr.Error(),
			Available: &stockErr.Available,
			Requested: &stockErr.Requested,
		})
	case errors.Is(err, services.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "Access denied. Admin privileges required.")
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "Sweet not found")
	case errors.Is(err, services.ErrDuplicateName):
		writeError(w, http.StatusConflict, "Sweet with this name already exists")
	case errors.Is(err, services.ErrEmailTaken):
		writeError(w, http.StatusConflict, "User already exists with this email")
	default:
		logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Server error")
	}
}

// decodeJSON decodes the request body into dst. An empty body leaves dst
// untouched when allowEmpty is set. Malformed input is reported as a
// *services.ValidationError.
func decodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	err := decoder.Decode(dst)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		if allowEmpty {
			return nil
		}
		return invalidBody("request body is required")
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		verr := &services.ValidationError{}
		verr.Add(field, fmt.Sprintf("must be a %s", describeKind(typeErr.Type.Kind().String())))
		return verr
	}
	return invalidBody("request body must be valid JSON")
}

func invalidBody(message string) error {
	verr := &services.ValidationError{}
	verr.Add("body", message)
	return verr
}

func describeKind(kind string) string {
	switch {
	case strings.HasPrefix(kind, "int"):
		return "integer"
	case strings.HasPrefix(kind, "float"):
		return "number"
	case kind == "ptr":
		return "value of the expected type"
	default:
		return kind
	}
}
