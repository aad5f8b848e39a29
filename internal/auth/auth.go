// Package auth decides whether a Mini App launch may proceed: it verifies the
// initData signature and freshness, resolves the whitelist and issues a
// session token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"ai_trade_gateway/internal/initdata"
	"ai_trade_gateway/internal/logging"
	"ai_trade_gateway/internal/metrics"
)

// ErrorKind classifies a rejected authentication.
type ErrorKind string

const (
	KindInvalidSignature     ErrorKind = "invalid_signature"
	KindExpired              ErrorKind = "expired"
	KindMalformedIdentity    ErrorKind = "malformed_identity"
	KindWhitelistUnavailable ErrorKind = "whitelist_unavailable"
)

// Retryable reports whether the same payload may succeed on a later attempt.
func (k ErrorKind) Retryable() bool {
	return k == KindWhitelistUnavailable
}

func (k ErrorKind) String() string {
	return string(k)
}

const (
	outcomeAccepted = "accepted"

	DefaultLookupTimeout = 3 * time.Second
	DefaultTouchTimeout  = 5 * time.Second
)

// Result is the outcome of Authorize. Reason is empty when Accepted.
type Result struct {
	Accepted      bool
	Identity      initdata.Identity
	Token         string
	IsWhitelisted bool
	Reason        ErrorKind
}

// Whitelist resolves whether a Telegram user has active access. A missing
// entry is (false, nil); errors mean the store could not answer.
type Whitelist interface {
	Lookup(ctx context.Context, telegramID int64) (bool, error)
}

// Toucher records that a user authenticated.
type Toucher interface {
	Touch(ctx context.Context, identity initdata.Identity) error
}

// TokenIssuer mints session tokens.
type TokenIssuer interface {
	Issue(userID int64) (string, error)
}

// Config holds the authorizer policy.
type Config struct {
	BotToken      string
	MaxAge        time.Duration
	LookupTimeout time.Duration
	TouchTimeout  time.Duration
}

// Authorizer runs the authentication pipeline. It holds no mutable state and
// is safe for concurrent use.
type Authorizer struct {
	cfg       Config
	whitelist Whitelist
	issuer    TokenIssuer
	toucher   Toucher
	logger    *logrus.Entry
	metrics   metrics.Recorder
	now       func() time.Time
	async     func(func())
}

// Option customizes an Authorizer.
type Option func(*Authorizer)

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(a *Authorizer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(a *Authorizer) {
		if recorder != nil {
			a.metrics = recorder
		}
	}
}

// WithClock overrides the time source used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(a *Authorizer) {
		if now != nil {
			a.now = now
		}
	}
}

// WithToucher enables last-active updates after successful authentication.
func WithToucher(toucher Toucher) Option {
	return func(a *Authorizer) {
		a.toucher = toucher
	}
}

// WithAsync overrides how touch work is scheduled. The default starts a goroutine.
func WithAsync(run func(func())) Option {
	return func(a *Authorizer) {
		if run != nil {
			a.async = run
		}
	}
}

// NewAuthorizer builds an Authorizer. whitelist may be nil, in which case
// every otherwise valid request is rejected with KindWhitelistUnavailable.
func NewAuthorizer(cfg Config, whitelist Whitelist, issuer TokenIssuer, opts ...Option) (*Authorizer, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("bot token is required")
	}
	if issuer == nil {
		return nil, errors.New("session token issuer is required")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = initdata.DefaultMaxAge
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if cfg.TouchTimeout <= 0 {
		cfg.TouchTimeout = DefaultTouchTimeout
	}

	a := &Authorizer{
		cfg:       cfg,
		whitelist: whitelist,
		issuer:    issuer,
		logger:    logging.Component("auth"),
		metrics:   metrics.Nop{},
		now:       time.Now,
		async:     func(f func()) { go f() },
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Authorize evaluates raw initData. Expected rejections are reported through
// Result.Reason; the error is reserved for internal faults.
func (a *Authorizer) Authorize(ctx context.Context, raw string) (Result, error) {
	if a == nil {
		return Result{}, errors.New("authorizer is not initialized")
	}
	if ctx == nil {
		return Result{}, errors.New("context is required")
	}

	if !initdata.Verify(raw, a.cfg.BotToken) {
		return a.reject(KindInvalidSignature, initdata.Identity{}), nil
	}
	if !initdata.IsFresh(raw, a.cfg.MaxAge, a.now()) {
		return a.reject(KindExpired, initdata.Identity{}), nil
	}

	identity, ok := initdata.ExtractUser(raw)
	if !ok || identity.ID == 0 {
		return a.reject(KindMalformedIdentity, initdata.Identity{}), nil
	}

	whitelisted, err := a.lookup(ctx, identity.ID)
	if err != nil {
		a.logger.WithFields(logging.Fields{
			"event":   "whitelist_unavailable",
			"user_id": identity.ID,
			"error":   err.Error(),
		}).Warn("whitelist lookup failed")
		return a.reject(KindWhitelistUnavailable, identity), nil
	}

	token, err := a.issuer.Issue(identity.ID)
	if err != nil {
		return Result{}, fmt.Errorf("issue session token: %w", err)
	}

	a.metrics.RecordAuthAttempt(outcomeAccepted)
	a.logger.WithFields(logging.Fields{
		"event":          "auth_accepted",
		"user_id":        identity.ID,
		"is_whitelisted": whitelisted,
	}).Info("mini app session authorized")

	a.scheduleTouch(identity)

	return Result{
		Accepted:      true,
		Identity:      identity,
		Token:         token,
		IsWhitelisted: whitelisted,
	}, nil
}

func (a *Authorizer) lookup(ctx context.Context, telegramID int64) (bool, error) {
	if a.whitelist == nil {
		return false, errors.New("whitelist store is not configured")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.cfg.LookupTimeout)
	defer cancel()

	type answer struct {
		whitelisted bool
		err         error
	}
	done := make(chan answer, 1)
	started := a.now()

	go func() {
		whitelisted, err := a.whitelist.Lookup(lookupCtx, telegramID)
		done <- answer{whitelisted: whitelisted, err: err}
	}()

	select {
	case res := <-done:
		a.metrics.RecordWhitelistLookup(a.now().Sub(started))
		return res.whitelisted, res.err
	case <-lookupCtx.Done():
		return false, fmt.Errorf("whitelist lookup: %w", lookupCtx.Err())
	}
}

func (a *Authorizer) scheduleTouch(identity initdata.Identity) {
	if a.toucher == nil {
		return
	}

	a.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.TouchTimeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				a.touchFailed(identity.ID, fmt.Errorf("panic: %v", r))
			}
		}()

		if err := a.toucher.Touch(ctx, identity); err != nil {
			a.touchFailed(identity.ID, err)
		}
	})
}

func (a *Authorizer) touchFailed(userID int64, err error) {
	a.metrics.RecordTouchFailure()
	a.logger.WithFields(logging.Fields{
		"event":   "whitelist_touch_failed",
		"user_id": userID,
		"error":   err.Error(),
	}).Warn("failed to record user activity")
}

func (a *Authorizer) reject(kind ErrorKind, identity initdata.Identity) Result {
	a.metrics.RecordAuthAttempt(kind.String())

	fields := logging.Fields{
		"event":  "auth_rejected",
		"reason": kind.String(),
	}
	if identity.ID != 0 {
		fields["user_id"] = identity.ID
	}
	a.logger.WithFields(fields).Info("mini app authentication rejected")

	return Result{Identity: identity, Reason: kind}
}
