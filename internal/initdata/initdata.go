// Package initdata verifies and decodes the signed launch payload that Telegram
// attaches to Mini App sessions.
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// FieldHash carries the hex signature and is excluded from the data-check-string.
	FieldHash = "hash"
	// FieldAuthDate carries the Unix timestamp (seconds) of the launch.
	FieldAuthDate = "auth_date"
	// FieldUser carries the JSON encoded Telegram user.
	FieldUser = "user"

	// DefaultMaxAge is the freshness window applied when callers have no policy of their own.
	DefaultMaxAge = 24 * time.Hour

	webAppDataKey = "WebAppData"
)

// Identity is the Telegram user embedded in initData.
type Identity struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
	PhotoURL     string `json:"photo_url,omitempty"`
}

// Parse decodes a URL-query-encoded payload into a flat map. Pairs that fail
// to decode are dropped; the rest are kept. A repeated key keeps its last value.
func Parse(raw string) map[string]string {
	fields := make(map[string]string)

	// url.ParseQuery keeps going after a bad pair and returns what it could decode.
	values, _ := url.ParseQuery(strings.TrimSpace(raw))
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		fields[key] = vals[len(vals)-1]
	}

	return fields
}

// DataCheckString joins every field except hash as sorted key=value lines.
func DataCheckString(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		if key == FieldHash {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+fields[key])
	}

	return strings.Join(lines, "\n")
}

// SecretKey derives the per-bot signing key: HMAC-SHA256 keyed with
// "WebAppData" over the bot token.
func SecretKey(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte(webAppDataKey))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// Sign returns the lowercase hex signature Telegram would attach to fields.
func Sign(fields map[string]string, botToken string) string {
	mac := hmac.New(sha256.New, SecretKey(botToken))
	mac.Write([]byte(DataCheckString(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether raw was signed by Telegram for botToken. Any missing
// input or undecodable payload is treated as untrusted.
func Verify(raw, botToken string) bool {
	if strings.TrimSpace(raw) == "" || botToken == "" {
		return false
	}

	fields := Parse(raw)
	supplied, ok := fields[FieldHash]
	if !ok || supplied == "" {
		return false
	}
	delete(fields, FieldHash)

	expected := Sign(fields, botToken)
	return hmac.Equal([]byte(expected), []byte(supplied))
}

// AuthDate returns the auth_date field as a UTC time.
func AuthDate(raw string) (time.Time, bool) {
	value, ok := Parse(raw)[FieldAuthDate]
	if !ok {
		return time.Time{}, false
	}

	seconds, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return time.Time{}, false
	}

	return time.Unix(seconds, 0).UTC(), true
}

// IsFresh reports whether auth_date lies within [now-maxAge, now]. Payloads
// dated in the future are rejected.
func IsFresh(raw string, maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	authDate, ok := AuthDate(raw)
	if !ok {
		return false
	}

	delta := now.Unix() - authDate.Unix()
	if delta < 0 {
		return false
	}

	return delta <= int64(maxAge/time.Second)
}

// ExtractUser decodes the user field. It does not check the signature; call
// Verify first.
func ExtractUser(raw string) (Identity, bool) {
	value, ok := Parse(raw)[FieldUser]
	if !ok || strings.TrimSpace(value) == "" {
		return Identity{}, false
	}

	var identity Identity
	if err := json.Unmarshal([]byte(value), &identity); err != nil {
		return Identity{}, false
	}

	return identity, true
}

// Encode renders fields as a query string, appending the hash when signing is
// requested. It is the inverse of Parse and is used to mint payloads for tests
// and local development.
func Encode(fields map[string]string, botToken string) string {
	values := url.Values{}
	for key, value := range fields {
		if key == FieldHash {
			continue
		}
		values.Set(key, value)
	}
	if botToken != "" {
		values.Set(FieldHash, Sign(fields, botToken))
	}

	return values.Encode()
}
