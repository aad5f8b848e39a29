package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"ai_trade_gateway/internal/auth"
	"ai_trade_gateway/internal/initdata"
	"ai_trade_gateway/internal/logging"
	"ai_trade_gateway/internal/session"
)

const (
	maxAuthBodyBytes = 64 << 10

	// whitelistRetryAfter is the Retry-After hint for WHITELIST_UNAVAILABLE.
	whitelistRetryAfter = 5
)

// Authenticator runs the Mini App authentication pipeline.
type Authenticator interface {
	Authorize(ctx context.Context, raw string) (auth.Result, error)
}

// SessionParser validates session tokens.
type SessionParser interface {
	Parse(token string) (session.Claims, error)
}

type authRequest struct {
	InitData string `json:"initData"`
}

type authResponse struct {
	Success       bool              `json:"success"`
	User          initdata.Identity `json:"user"`
	IsWhitelisted bool              `json:"isWhitelisted"`
	SessionToken  string            `json:"sessionToken"`
}

type sessionResponse struct {
	UserID    int64     `json:"userId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthHandler serves POST /api/auth.
type AuthHandler struct {
	authorizer Authenticator
	logger     *logrus.Entry
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authorizer Authenticator, logger *logrus.Entry) *AuthHandler {
	if logger == nil {
		logger = logging.Component("httpapi")
	}
	return &AuthHandler{authorizer: authorizer, logger: logger}
}

// Authenticate exchanges initData for a session token.
func (h *AuthHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBodyBytes))
	if err := decoder.Decode(&req); err != nil || strings.TrimSpace(req.InitData) == "" {
		WriteErrorResponse(w, errMissingInitData())
		return
	}

	result, err := h.authorizer.Authorize(r.Context(), req.InitData)
	if err != nil {
		h.logger.WithFields(logging.Fields{
			"event":      "auth_internal_error",
			"request_id": RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		}).Error("authorization failed unexpectedly")
		WriteErrorResponse(w, errInternal())
		return
	}

	if !result.Accepted {
		if result.Reason.Retryable() {
			w.Header().Set("Retry-After", strconv.Itoa(whitelistRetryAfter))
		}
		WriteErrorResponse(w, errorForKind(result.Reason))
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Success:       true,
		User:          result.Identity,
		IsWhitelisted: result.IsWhitelisted,
		SessionToken:  result.Token,
	})
}

// SessionHandler serves GET /api/session.
type SessionHandler struct {
	parser SessionParser
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(parser SessionParser) *SessionHandler {
	return &SessionHandler{parser: parser}
}

// Current returns the claims of the bearer token.
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		WriteErrorResponse(w, errMissingSession())
		return
	}

	claims, err := h.parser.Parse(token)
	if err != nil {
		if errors.Is(err, session.ErrExpired) {
			WriteErrorResponse(w, errSessionExpired())
			return
		}
		WriteErrorResponse(w, errInvalidSession())
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		UserID:    claims.UserID,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}
