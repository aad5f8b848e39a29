package httpapi

import (
	"encoding/json"
	"net/http"

	"ai_trade_gateway/internal/auth"
)

// Error categories shown to the Mini App client.
const (
	CategoryAuth   = "auth"
	CategoryInput  = "input"
	CategorySystem = "system"
)

// Error codes returned by the HTTP API.
const (
	CodeMissingInitData      = "MISSING_INIT_DATA"
	CodeMalformedIdentity    = "MALFORMED_IDENTITY"
	CodeInvalidSignature     = "INVALID_SIGNATURE"
	CodeAuthExpired          = "AUTH_EXPIRED"
	CodeWhitelistUnavailable = "WHITELIST_UNAVAILABLE"
	CodeRateLimited          = "RATE_LIMITED"
	CodeInternalError        = "INTERNAL_ERROR"
	CodeMissingSession       = "MISSING_SESSION"
	CodeInvalidSession       = "INVALID_SESSION"
	CodeSessionExpired       = "SESSION_EXPIRED"
)

// APIError is the uniform error body of the HTTP API.
type APIError struct {
	Status   int    `json:"-"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

func errMissingInitData() *APIError {
	return &APIError{
		Status:   http.StatusBadRequest,
		Code:     CodeMissingInitData,
		Message:  "initData is required.",
		Category: CategoryInput,
		Action:   "Open the app from Telegram.",
	}
}

func errInternal() *APIError {
	return &APIError{
		Status:   http.StatusInternalServerError,
		Code:     CodeInternalError,
		Message:  "An internal error occurred.",
		Category: CategorySystem,
		Action:   "Please try again later.",
	}
}

func errRateLimited() *APIError {
	return &APIError{
		Status:   http.StatusTooManyRequests,
		Code:     CodeRateLimited,
		Message:  "Too many requests.",
		Category: CategorySystem,
		Action:   "Please wait and retry after the specified time.",
	}
}

func errMissingSession() *APIError {
	return &APIError{
		Status:   http.StatusUnauthorized,
		Code:     CodeMissingSession,
		Message:  "A bearer session token is required.",
		Category: CategoryAuth,
		Action:   "Authenticate again.",
	}
}

func errInvalidSession() *APIError {
	return &APIError{
		Status:   http.StatusUnauthorized,
		Code:     CodeInvalidSession,
		Message:  "The session token is not valid.",
		Category: CategoryAuth,
		Action:   "Authenticate again.",
	}
}

func errSessionExpired() *APIError {
	return &APIError{
		Status:   http.StatusUnauthorized,
		Code:     CodeSessionExpired,
		Message:  "The session token has expired.",
		Category: CategoryAuth,
		Action:   "Authenticate again.",
	}
}

// errorForKind maps an authorizer rejection to its response. Every kind has a
// distinct code so the client can translate it.
func errorForKind(kind auth.ErrorKind) *APIError {
	switch kind {
	case auth.KindInvalidSignature:
		return &APIError{
			Status:   http.StatusUnauthorized,
			Code:     CodeInvalidSignature,
			Message:  "initData signature is invalid.",
			Category: CategoryAuth,
			Action:   "Reopen the app from Telegram.",
		}
	case auth.KindExpired:
		return &APIError{
			Status:   http.StatusUnauthorized,
			Code:     CodeAuthExpired,
			Message:  "initData has expired.",
			Category: CategoryAuth,
			Action:   "Reopen the app from Telegram.",
		}
	case auth.KindMalformedIdentity:
		return &APIError{
			Status:   http.StatusBadRequest,
			Code:     CodeMalformedIdentity,
			Message:  "initData does not carry a valid user.",
			Category: CategoryInput,
			Action:   "Reopen the app from Telegram.",
		}
	case auth.KindWhitelistUnavailable:
		return &APIError{
			Status:   http.StatusServiceUnavailable,
			Code:     CodeWhitelistUnavailable,
			Message:  "Access list is temporarily unavailable.",
			Category: CategorySystem,
			Action:   "Please try again in a few seconds.",
		}
	default:
		return errInternal()
	}
}

// WriteErrorResponse writes apiErr as JSON with its HTTP status.
func WriteErrorResponse(w http.ResponseWriter, apiErr *APIError) {
	writeJSON(w, apiErr.Status, apiErr)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
