package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	domainauth "github.com/eduadmin/portal/internal/domain/auth"
)

// maxBodyBytes bounds request bodies; session payloads are tiny.
const maxBodyBytes = 64 << 10

// ErrorCode is the machine-readable "error" field of an API error body.
type ErrorCode string

// Error codes returned by the session API besides the failure kinds of WriteFailure.
const (
	CodeInvalidJSON             ErrorCode = "invalid_json"
	CodePayloadTooLarge         ErrorCode = "payload_too_large"
	CodeMissingCredentials      ErrorCode = "missing_credentials"
	CodeAuthenticationRequired  ErrorCode = "authentication_required"
	CodeInsufficientPermissions ErrorCode = "insufficient_permissions"
	CodeSessionPending          ErrorCode = "session_pending"
	CodeRefreshFailed           ErrorCode = "refresh_failed"
	CodeInvalidProfile          ErrorCode = "invalid_profile"
	CodeProfileUpdateFailed     ErrorCode = "profile_update_failed"
	CodeInvalidSignal           ErrorCode = "invalid_signal"
	CodeCSRFFailed              ErrorCode = "csrf_failed"
	CodeCSRFUnavailable         ErrorCode = "csrf_unavailable"
)

// DecodeJSON decodes a session request body into dst, rejecting unknown fields and oversized bodies.
// Returns false after writing the error response.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, ErrorParams{
				Code:    http.StatusRequestEntityTooLarge,
				ErrCode: CodePayloadTooLarge,
				Err:     errors.New("request body too large"),
			})
			return false
		}
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: CodeInvalidJSON, Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response. Session state must never be served from a cache.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	// Client disconnects can't be recovered from here.
	_, _ = buf.WriteTo(w)
}

type errorResponse struct {
	Error   ErrorCode `json:"error"`
	Message string    `json:"message"`
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode ErrorCode
	// Err is shown to the caller; keep causes for the logs.
	Err error
}

// WriteError writes the {"error", "message"} envelope.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, errorResponse{Error: p.ErrCode, Message: p.Err.Error()})
}

// WriteFailure answers for a failed login or refresh. The code is the failure kind,
// the status says whether retrying can help. Details stay in the logs.
func WriteFailure(w http.ResponseWriter, kind domainauth.FailureKind) {
	switch kind {
	case domainauth.FailureInvalidCredentials:
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: ErrorCode(kind.String()),
			Err:     errors.New("invalid email or password"),
		})
	case domainauth.FailureNetworkUnavailable:
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: ErrorCode(kind.String()),
			Err:     errors.New("authentication service is unreachable"),
		})
	default:
		WriteError(w, ErrorParams{
			Code:    http.StatusBadGateway,
			ErrCode: ErrorCode(domainauth.FailureProviderError.String()),
			Err:     errors.New("authentication service failed"),
		})
	}
}
