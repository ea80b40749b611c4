package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/target/institute-web/internal/data"
	apperrors "github.com/target/institute-web/internal/errors"
	"github.com/target/institute-web/internal/service"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": p.Err.Error()})
}

var errInternal = errors.New("internal error")

// writeServiceError maps service and repository errors onto a status and error code.
// Unclassified errors become a 500 with fallback as the code and a generic message.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		WriteError(w, ErrorParams{Code: appErrorStatus(appErr.Code), ErrCode: string(appErr.Code), Err: appErrorMessage(appErr)})
	case errors.Is(err, data.ErrEmailTaken):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "email_taken", Err: err})
	case errors.Is(err, service.ErrAccountConflict):
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: "account_conflict", Err: err})
	case errors.Is(err, data.ErrInvalidRole):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation", Err: err})
	case errors.Is(err, data.ErrProfileNotFound),
		errors.Is(err, data.ErrArchiveEntryNotFound),
		errors.Is(err, data.ErrBookNotFound),
		errors.Is(err, data.ErrGalleryItemNotFound):
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Err: err})
	case errors.Is(err, service.ErrInvalidCredentials):
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "invalid_credentials", Err: err})
	case errors.Is(err, service.ErrInvalidRefreshToken), errors.Is(err, service.ErrSessionExpired),
		errors.Is(err, service.ErrNoSession):
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "no_session", Err: service.ErrNoSession})
	default:
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: fallback, Err: errInternal})
	}
}

func appErrorStatus(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeValidation, apperrors.ErrCodeForeignKey:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// appErrorMessage hides causes of internal errors from clients.
func appErrorMessage(e *apperrors.AppError) error {
	if appErrorStatus(e.Code) == http.StatusInternalServerError {
		return errInternal
	}
	return errors.New(e.Message)
}
