package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/ledger"
	"github.com/wdeanegpt/property-sub001/logger"
)

// =============================================================================
// REQUEST DECODING & VALIDATION
// =============================================================================

// maxBodyBytes bounds request bodies; receipt images are the largest.
const maxBodyBytes = 10 << 20

func newValidator() *validator.Validate {
	v := validator.New()
	// Report JSON names, not Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates its tags. Failures come
// back as *ledger.ValidationError.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return ledger.NewValidationError("", "invalid request body: "+err.Error(), nil)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return ledger.NewValidationError(fe.Field(), validationMessage(fe), nil)
		}
		return ledger.NewValidationError("", err.Error(), nil)
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required without " + strings.ToLower(fe.Param())
	case "numeric":
		return "must be a decimal amount"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}

// =============================================================================
// ERROR RESPONSES
// =============================================================================

// statusFor maps the ledger error taxonomy onto HTTP.
func statusFor(err error) int {
	switch {
	case ledger.IsValidation(err):
		return http.StatusBadRequest
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsConflict(err):
		return http.StatusConflict
	case ledger.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status its kind maps to. Server-side failures
// are logged with the request's logger and their details hidden.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status)}

	var ve *ledger.ValidationError
	switch {
	case errors.As(err, &ve):
		resp.Error = ve.Message
		resp.Field = ve.Field
	case status < http.StatusInternalServerError:
		resp.Error = err.Error()
	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		resp.Details = err.Error()
	default:
		log := logger.FromContext(r.Context())
		if ledger.IsIntegrity(err) {
			log.Error("integrity violation", zap.Error(err))
			resp.Details = err.Error()
		} else {
			log.Error("request failed", zap.Error(err))
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
