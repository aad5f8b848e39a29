// Package session issues and validates the signed tokens handed to the Mini App
// after a successful initData authentication.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Issuer is stamped into every token and required on parse.
	Issuer = "ai-trade-gateway"
	// MinSecretLength is the minimum HMAC secret size in bytes.
	MinSecretLength = 32
	// DefaultTTL applies when no lifetime is configured.
	DefaultTTL = 24 * time.Hour

	nonceBytes = 16
)

var (
	// ErrMalformedToken is returned for tokens that cannot be decoded.
	ErrMalformedToken = errors.New("malformed session token")
	// ErrInvalidSignature is returned when the token was not signed by this gateway.
	ErrInvalidSignature = errors.New("invalid session token signature")
	// ErrExpired is returned once a token outlives its TTL.
	ErrExpired = errors.New("session token expired")
)

// Claims is the decoded content of a session token.
type Claims struct {
	UserID    int64
	IssuedAt  time.Time
	ExpiresAt time.Time
	Nonce     string
}

// Codec issues and parses HS256 session tokens.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	random io.Reader
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRandom overrides the nonce entropy source.
func WithRandom(r io.Reader) Option {
	return func(c *Codec) {
		if r != nil {
			c.random = r
		}
	}
}

// NewCodec validates the secret and returns a Codec. A non-positive ttl falls
// back to DefaultTTL.
func NewCodec(secret string, ttl time.Duration, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	codec := &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(codec)
	}

	return codec, nil
}

// TTL reports the lifetime of issued tokens.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for userID.
func (c *Codec) Issue(userID int64) (string, error) {
	if c == nil {
		return "", errors.New("session codec is not initialized")
	}
	if userID == 0 {
		return "", errors.New("user id is required")
	}

	nonce := make([]byte, nonceBytes)
	if _, err := io.ReadFull(c.random, nonce); err != nil {
		return "", fmt.Errorf("generate session nonce: %w", err)
	}

	now := c.now().UTC()
	claims := jwt.RegisteredClaims{
		ID:        hex.EncodeToString(nonce),
		Issuer:    Issuer,
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	return signed, nil
}

// Parse validates token and returns its claims. It never panics; every
// failure maps to ErrMalformedToken, ErrInvalidSignature or ErrExpired.
func (c *Codec) Parse(token string) (Claims, error) {
	if c == nil {
		return Claims{}, errors.New("session codec is not initialized")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrMalformedToken
	}

	var registered jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &registered,
		func(*jwt.Token) (interface{}, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Claims{}, classify(err)
	}

	userID, err := strconv.ParseInt(registered.Subject, 10, 64)
	if err != nil || userID == 0 {
		return Claims{}, ErrMalformedToken
	}
	if registered.IssuedAt == nil || registered.ID == "" {
		return Claims{}, ErrMalformedToken
	}

	return Claims{
		UserID:    userID,
		IssuedAt:  registered.IssuedAt.Time.UTC(),
		ExpiresAt: registered.ExpiresAt.Time.UTC(),
		Nonce:     registered.ID,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		return ErrMalformedToken
	}
}
