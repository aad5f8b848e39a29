package session

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func newTestCodec(t *testing.T, now *time.Time) *Codec {
	t.Helper()

	codec, err := NewCodec(testSecret, time.Hour, WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}
	return codec
}

func TestNewCodecValidatesSecret(t *testing.T) {
	if _, err := NewCodec("short", time.Hour); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}

	codec, err := NewCodec(testSecret, 0)
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}
	if codec.TTL() != DefaultTTL {
		t.Fatalf("expected default ttl %s, got %s", DefaultTTL, codec.TTL())
	}
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	codec := newTestCodec(t, &now)

	token, err := codec.Issue(42)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("expected compact JWT, got %q", token)
	}

	claims, err := codec.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.UserID != 42 {
		t.Fatalf("expected user 42, got %d", claims.UserID)
	}
	if !claims.IssuedAt.Equal(now) {
		t.Fatalf("expected issued at %v, got %v", now, claims.IssuedAt)
	}
	if !claims.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected expiry %v, got %v", now.Add(time.Hour), claims.ExpiresAt)
	}
	if len(claims.Nonce) != 2*nonceBytes {
		t.Fatalf("expected %d hex chars of nonce, got %q", 2*nonceBytes, claims.Nonce)
	}
}

func TestIssueProducesDistinctNonces(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	codec := newTestCodec(t, &now)

	first, err := codec.Issue(42)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	second, err := codec.Issue(42)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if first == second {
		t.Fatalf("expected tokens issued in the same second to differ")
	}
}

func TestIssueUsesInjectedRandom(t *testing.T) {
	codec, err := NewCodec(testSecret, time.Hour,
		WithClock(fixedClock(time.Unix(1700000000, 0))),
		WithRandom(bytes.NewReader(bytes.Repeat([]byte{0xab}, nonceBytes))),
	)
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}

	token, err := codec.Issue(7)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	claims, err := codec.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.Nonce != strings.Repeat("ab", nonceBytes) {
		t.Fatalf("unexpected nonce %q", claims.Nonce)
	}

	if _, err := codec.Issue(7); err == nil {
		t.Fatalf("expected exhausted entropy source to fail issuing")
	}
}

func TestIssueRejectsZeroUser(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	if _, err := newTestCodec(t, &now).Issue(0); err == nil {
		t.Fatalf("expected zero user id to be rejected")
	}
}

func TestParseExpiry(t *testing.T) {
	issued := time.Unix(1700000000, 0).UTC()
	now := issued
	codec := newTestCodec(t, &now)

	token, err := codec.Issue(42)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	now = issued.Add(time.Hour - time.Second)
	if _, err := codec.Parse(token); err != nil {
		t.Fatalf("expected token to be valid just before expiry, got %v", err)
	}

	now = issued.Add(time.Hour)
	if _, err := codec.Parse(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired at expiry, got %v", err)
	}
}

func TestParseRejectsForgedTokens(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	codec := newTestCodec(t, &now)

	token42, err := codec.Issue(42)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	token43, err := codec.Issue(43)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	other, err := NewCodec("another-secret-another-secret-0123", time.Hour, WithClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("NewCodec returned error: %v", err)
	}
	foreign, err := other.Issue(42)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	parts42 := strings.Split(token42, ".")
	parts43 := strings.Split(token43, ".")
	spliced := parts42[0] + "." + parts43[1] + "." + parts42[2]

	sig := []byte(parts42[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	flipped := parts42[0] + "." + parts42[1] + "." + string(sig)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "42",
		Issuer:    Issuer,
		ID:        "nonce",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "foreign secret", token: foreign, want: ErrInvalidSignature},
		{name: "spliced payload", token: spliced, want: ErrInvalidSignature},
		{name: "flipped signature", token: flipped, want: ErrInvalidSignature},
		{name: "alg none", token: unsigned, want: ErrInvalidSignature},
		{name: "empty", token: "", want: ErrMalformedToken},
		{name: "garbage", token: "not-a-token", want: ErrMalformedToken},
		{name: "two segments", token: parts42[0] + "." + parts42[1], want: ErrMalformedToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := codec.Parse(tt.token); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseRejectsForeignIssuerAndSubject(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	codec := newTestCodec(t, &now)

	sign := func(claims jwt.RegisteredClaims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("sign failed: %v", err)
		}
		return token
	}

	base := jwt.RegisteredClaims{
		Subject:   "42",
		Issuer:    Issuer,
		ID:        "abc",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	wrongIssuer := base
	wrongIssuer.Issuer = "someone-else"
	if _, err := codec.Parse(sign(wrongIssuer)); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected foreign issuer to be malformed, got %v", err)
	}

	badSubject := base
	badSubject.Subject = "forty-two"
	if _, err := codec.Parse(sign(badSubject)); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected non-numeric subject to be malformed, got %v", err)
	}

	noExpiry := base
	noExpiry.ExpiresAt = nil
	if _, err := codec.Parse(sign(noExpiry)); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("expected token without exp to be malformed, got %v", err)
	}
}
