package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/templui/cloudbox/internal/ctxkeys"
	"github.com/templui/cloudbox/internal/logger"
	"github.com/templui/cloudbox/internal/service"
)

// maxJSONBody caps request bodies of the JSON endpoints.
const maxJSONBody = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["success"] = true

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(fields)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeFail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   message,
	})
}

// statusOf maps service error kinds to HTTP status codes.
func statusOf(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrQuotaExceeded), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the status of err's kind. Unclassified errors are logged
// and, in production, replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status != http.StatusInternalServerError {
		writeFail(w, status, err.Error())
		return
	}

	attrs := []any{"method", r.Method, "path", r.URL.Path, "error", err, logger.Stack()}
	if user := ctxkeys.User(r.Context()); user != nil {
		attrs = append(attrs, "user_id", user.ID)
	}
	slog.Error("request failed", attrs...)

	message := err.Error()
	if cfg := ctxkeys.Config(r.Context()); cfg == nil || cfg.IsProduction() {
		message = "internal server error"
	}
	writeFail(w, status, message)
}

// decodeJSON reads a JSON body into dst and runs its validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	err := dec.Decode(dst)
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: request body is required", service.ErrValidation)
	}
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return fmt.Errorf("%w: invalid JSON body", service.ErrValidation)
	}

	err = validate.Struct(dst)
	if err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return fmt.Errorf("%w: %v", service.ErrValidation, err)
	}

	e := validationErrs[0]
	field := e.Field()
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", service.ErrValidation, field)
	case "min":
		return fmt.Errorf("%w: %s must contain at least %s item(s)", service.ErrValidation, field, e.Param())
	case "max":
		return fmt.Errorf("%w: %s must contain at most %s item(s)", service.ErrValidation, field, e.Param())
	default:
		return fmt.Errorf("%w: %s is invalid", service.ErrValidation, field)
	}
}

// NotFound answers unknown routes with the JSON failure envelope.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeFail(w, http.StatusNotFound, "route not found")
}
