// Package initdata verifies Telegram Mini App initData payloads.
//
// The payload is a URL-encoded set of key/value pairs signed by Telegram
// with HMAC-SHA256. The signing key is itself derived from the bot token:
// secretKey = HMAC-SHA256(key=botToken, message="WebAppData"). The signature
// covers the canonical check-string: every pair except "hash", rendered as
// "key=value", sorted, and joined with newlines.
package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidInitData is returned when the payload is malformed or its
	// signature does not match.
	ErrInvalidInitData = errors.New("invalid init data")
	// ErrExpiredInitData is returned when auth_date is older than the TTL.
	ErrExpiredInitData = errors.New("expired init data")
)

// DefaultTTL is the default freshness window for auth_date.
const DefaultTTL = time.Hour

// secretKeyPrefix is the fixed message Telegram uses to derive the
// per-bot signing key from the bot token.
const secretKeyPrefix = "WebAppData"

// Identity is the user claim embedded in a verified payload.
// Optional fields are empty strings when absent.
type Identity struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}

// Verifier validates signed initData payloads against a bot token.
// It is stateless and safe for concurrent use.
type Verifier struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewVerifier creates a Verifier for the given bot token.
// A non-positive ttl falls back to DefaultTTL.
func NewVerifier(botToken string, ttl time.Duration) *Verifier {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	mac := hmac.New(sha256.New, []byte(botToken))
	mac.Write([]byte(secretKeyPrefix))
	return &Verifier{
		secretKey: mac.Sum(nil),
		ttl:       ttl,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Verify checks the signature and freshness of a raw initData string and
// returns the embedded identity. It has no side effects.
func (v *Verifier) Verify(raw string) (*Identity, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed query encoding", ErrInvalidInitData)
	}

	suppliedHash := values.Get("hash")
	authDateRaw := values.Get("auth_date")
	if suppliedHash == "" || authDateRaw == "" {
		return nil, fmt.Errorf("%w: missing hash or auth_date", ErrInvalidInitData)
	}

	expected := v.sign(checkString(values))
	if !hmac.Equal([]byte(expected), []byte(suppliedHash)) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrInvalidInitData)
	}

	authDate, err := strconv.ParseInt(authDateRaw, 10, 64)
	if err != nil || authDate <= 0 {
		return nil, fmt.Errorf("%w: bad auth_date", ErrInvalidInitData)
	}
	age := v.now().Unix() - authDate
	if age > int64(v.ttl.Seconds()) {
		return nil, fmt.Errorf("%w: payload is %ds old", ErrExpiredInitData, age)
	}

	var identity Identity
	if err := json.Unmarshal([]byte(values.Get("user")), &identity); err != nil {
		return nil, fmt.Errorf("%w: malformed user field", ErrInvalidInitData)
	}
	if identity.ID <= 0 {
		return nil, fmt.Errorf("%w: missing user id", ErrInvalidInitData)
	}

	return &identity, nil
}

// checkString builds the canonical signing input: every pair except "hash",
// formatted "key=value", sorted lexicographically, newline-joined.
func checkString(values url.Values) string {
	pairs := make([]string, 0, len(values))
	for key, vals := range values {
		if key == "hash" {
			continue
		}
		for _, val := range vals {
			pairs = append(pairs, key+"="+val)
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "\n")
}

// sign computes the hex-encoded HMAC-SHA256 of the check-string with the
// derived secret key.
func (v *Verifier) sign(check string) string {
	mac := hmac.New(sha256.New, v.secretKey)
	mac.Write([]byte(check))
	return hex.EncodeToString(mac.Sum(nil))
}
