package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"herdbook/internal/core"
	"herdbook/internal/enrollment"
	"herdbook/internal/photos"
	"herdbook/pkg/domain"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

type errorBody struct {
	Error      string             `json:"error"`
	Fields     []string           `json:"fields,omitempty"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

// statusFor maps engine and collaborator errors onto HTTP status codes.
func statusFor(err error) int {
	var ruleErr domain.RuleViolationError
	switch {
	case errors.Is(err, domain.ErrUnknownOwner),
		errors.Is(err, domain.ErrUnknownAnimal),
		errors.Is(err, domain.ErrUnknownTransferRequest),
		errors.Is(err, photos.ErrNotFound),
		errors.Is(err, photos.ErrInvalidKey):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, domain.ErrInvalidRequestState),
		errors.Is(err, domain.ErrDuplicateBiometricHash),
		errors.Is(err, domain.ErrDuplicateSerialNumber),
		errors.As(err, &ruleErr):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRole),
		errors.Is(err, photos.ErrNotImage),
		errors.Is(err, enrollment.ErrNoPhotos):
		return http.StatusBadRequest
	case errors.Is(err, enrollment.ErrBiometricRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var ruleErr domain.RuleViolationError
	if errors.As(err, &ruleErr) {
		body.Violations = ruleErr.Result.Violations
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func (s *Server) writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("%s: %s", jsonFieldName(fe.Namespace()), fe.Tag())
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		fields = append(fields, msg)
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: fields})
}

// jsonFieldName turns "createUserRequest.OwnerID" into "OwnerID".
func jsonFieldName(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// notFound reports a missing entity the way the engine would.
func notFound(entity core.EntityType, id string) error {
	return domain.NotFoundError{Entity: entity, ID: id}
}
