package initdata

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"
)

const testBotToken = "123456:ABC-DEF1234ghIkl-zyx57W2v1u123ew11"

var testNow = time.Unix(1736600000, 0)

// signPayload produces a validly signed initData string the way the
// Telegram client would: sort key=value pairs, newline-join, HMAC with
// the key derived from the bot token.
func signPayload(t *testing.T, token string, fields map[string]string) string {
	t.Helper()

	pairs := make([]string, 0, len(fields))
	for k, v := range fields {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	keyMac := hmac.New(sha256.New, []byte(token))
	keyMac.Write([]byte("WebAppData"))
	secretKey := keyMac.Sum(nil)

	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(strings.Join(pairs, "\n")))
	hash := hex.EncodeToString(mac.Sum(nil))

	query := url.Values{}
	for k, v := range fields {
		query.Set(k, v)
	}
	query.Set("hash", hash)
	return query.Encode()
}

func freshFields(authDate time.Time) map[string]string {
	return map[string]string{
		"auth_date": strconv.FormatInt(authDate.Unix(), 10),
		"query_id":  "AAHdF6IQAAAAAN0XohDhrOrc",
		"user":      `{"id":99281932,"first_name":"Andrew","last_name":"Rogue","username":"rogue","photo_url":"https://t.me/i/userpic/320/rogue.jpg"}`,
	}
}

func newTestVerifier() *Verifier {
	return NewVerifier(testBotToken, DefaultTTL).WithClock(func() time.Time { return testNow })
}

func TestVerify_ValidPayload(t *testing.T) {
	raw := signPayload(t, testBotToken, freshFields(testNow.Add(-time.Minute)))

	identity, err := newTestVerifier().Verify(raw)
	if err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}

	if identity.ID != 99281932 {
		t.Errorf("identity.ID = %d, want 99281932", identity.ID)
	}
	if identity.FirstName != "Andrew" {
		t.Errorf("identity.FirstName = %q, want %q", identity.FirstName, "Andrew")
	}
	if identity.Username != "rogue" {
		t.Errorf("identity.Username = %q, want %q", identity.Username, "rogue")
	}
	if identity.PhotoURL == "" {
		t.Error("identity.PhotoURL should be set")
	}
}

func TestVerify_OptionalFieldsDefaultEmpty(t *testing.T) {
	fields := freshFields(testNow.Add(-time.Minute))
	fields["user"] = `{"id":42}`
	raw := signPayload(t, testBotToken, fields)

	identity, err := newTestVerifier().Verify(raw)
	if err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}

	if identity.ID != 42 {
		t.Errorf("identity.ID = %d, want 42", identity.ID)
	}
	if identity.FirstName != "" || identity.LastName != "" || identity.Username != "" || identity.PhotoURL != "" {
		t.Errorf("optional fields should default to empty, got %+v", identity)
	}
}

func TestVerify_InvalidPayloads(t *testing.T) {
	tests := []struct {
		name string
		raw  func(t *testing.T) string
	}{
		{
			name: "empty payload",
			raw:  func(t *testing.T) string { return "" },
		},
		{
			name: "missing hash",
			raw: func(t *testing.T) string {
				return "auth_date=" + strconv.FormatInt(testNow.Unix(), 10)
			},
		},
		{
			name: "missing auth_date",
			raw: func(t *testing.T) string {
				fields := freshFields(testNow)
				delete(fields, "auth_date")
				return signPayload(t, testBotToken, fields)
			},
		},
		{
			name: "signed with wrong token",
			raw: func(t *testing.T) string {
				return signPayload(t, "999999:wrong-token", freshFields(testNow))
			},
		},
		{
			name: "tampered field after signing",
			raw: func(t *testing.T) string {
				raw := signPayload(t, testBotToken, freshFields(testNow))
				return strings.Replace(raw, "Andrew", "Mallory", 1)
			},
		},
		{
			name: "non-numeric auth_date",
			raw: func(t *testing.T) string {
				fields := freshFields(testNow)
				fields["auth_date"] = "yesterday"
				return signPayload(t, testBotToken, fields)
			},
		},
		{
			name: "non-positive auth_date",
			raw: func(t *testing.T) string {
				fields := freshFields(testNow)
				fields["auth_date"] = "-5"
				return signPayload(t, testBotToken, fields)
			},
		},
		{
			name: "malformed user JSON",
			raw: func(t *testing.T) string {
				fields := freshFields(testNow)
				fields["user"] = `{"id":`
				return signPayload(t, testBotToken, fields)
			},
		},
		{
			name: "missing user field",
			raw: func(t *testing.T) string {
				fields := freshFields(testNow)
				delete(fields, "user")
				return signPayload(t, testBotToken, fields)
			},
		},
		{
			name: "non-numeric user id",
			raw: func(t *testing.T) string {
				fields := freshFields(testNow)
				fields["user"] = `{"id":"abc","first_name":"A"}`
				return signPayload(t, testBotToken, fields)
			},
		},
	}

	v := newTestVerifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.raw(t))
			if !errors.Is(err, ErrInvalidInitData) {
				t.Errorf("expected ErrInvalidInitData, got %v", err)
			}
		})
	}
}

func TestVerify_SingleByteHashMutation(t *testing.T) {
	raw := signPayload(t, testBotToken, freshFields(testNow.Add(-time.Minute)))

	values, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatalf("failed to parse test payload: %v", err)
	}
	hash := values.Get("hash")

	// Flip one hex digit at a time; every mutation must be rejected.
	for i := 0; i < len(hash); i += 8 {
		mutated := []byte(hash)
		if mutated[i] == 'a' {
			mutated[i] = 'b'
		} else {
			mutated[i] = 'a'
		}
		values.Set("hash", string(mutated))

		_, err := newTestVerifier().Verify(values.Encode())
		if !errors.Is(err, ErrInvalidInitData) {
			t.Errorf("mutation at byte %d: expected ErrInvalidInitData, got %v", i, err)
		}
	}
}

func TestVerify_TruncatedHash(t *testing.T) {
	raw := signPayload(t, testBotToken, freshFields(testNow.Add(-time.Minute)))

	values, _ := url.ParseQuery(raw)
	values.Set("hash", values.Get("hash")[:32])

	_, err := newTestVerifier().Verify(values.Encode())
	if !errors.Is(err, ErrInvalidInitData) {
		t.Errorf("expected ErrInvalidInitData for truncated hash, got %v", err)
	}
}

func TestVerify_FreshnessBoundary(t *testing.T) {
	ttl := DefaultTTL

	tests := []struct {
		name     string
		authDate time.Time
		wantErr  error
	}{
		{
			name:     "one second inside the window",
			authDate: testNow.Add(-ttl + time.Second),
		},
		{
			name:     "exactly at the window edge",
			authDate: testNow.Add(-ttl),
		},
		{
			name:     "one second past the window",
			authDate: testNow.Add(-ttl - time.Second),
			wantErr:  ErrExpiredInitData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := signPayload(t, testBotToken, freshFields(tt.authDate))

			_, err := newTestVerifier().Verify(raw)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestVerify_CustomTTL(t *testing.T) {
	v := NewVerifier(testBotToken, 10*time.Second).WithClock(func() time.Time { return testNow })

	raw := signPayload(t, testBotToken, freshFields(testNow.Add(-11*time.Second)))
	if _, err := v.Verify(raw); !errors.Is(err, ErrExpiredInitData) {
		t.Errorf("expected ErrExpiredInitData with short TTL, got %v", err)
	}

	raw = signPayload(t, testBotToken, freshFields(testNow.Add(-9*time.Second)))
	if _, err := v.Verify(raw); err != nil {
		t.Errorf("expected success within short TTL, got %v", err)
	}
}
