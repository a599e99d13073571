// Package testutil provides shared helpers and fakes for tests.
package testutil

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cookiespooky/np-tma-backend/internal/initdata"
	"github.com/cookiespooky/np-tma-backend/internal/model"
)

var errStatsMiss = errors.New("user count not cached")

// SignInitData produces a validly signed initData payload the way the
// Telegram client does: key=value pairs sorted and newline-joined, signed
// with HMAC-SHA256 under the key derived from the bot token.
func SignInitData(t testing.TB, botToken string, fields map[string]string) string {
	t.Helper()

	pairs := make([]string, 0, len(fields))
	for k, v := range fields {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	keyMac := hmac.New(sha256.New, []byte(botToken))
	keyMac.Write([]byte("WebAppData"))

	mac := hmac.New(sha256.New, keyMac.Sum(nil))
	mac.Write([]byte(strings.Join(pairs, "\n")))

	query := url.Values{}
	for k, v := range fields {
		query.Set(k, v)
	}
	query.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return query.Encode()
}

// UserFields returns a typical initData field set for the given user,
// issued at authDate.
func UserFields(userID int64, firstName, username string, authDate time.Time) map[string]string {
	return map[string]string{
		"auth_date": strconv.FormatInt(authDate.Unix(), 10),
		"query_id":  "AAHdF6IQAAAAAN0XohDhrOrc",
		"user": `{"id":` + strconv.FormatInt(userID, 10) +
			`,"first_name":"` + firstName + `","username":"` + username + `"}`,
	}
}

// FakeUserStore is an in-memory implementation of the session service's
// store interface.
type FakeUserStore struct {
	mu    sync.Mutex
	Users map[int64]*model.User

	// Err, when set, is returned by every operation.
	Err error
}

// NewFakeUserStore creates an empty in-memory store.
func NewFakeUserStore() *FakeUserStore {
	return &FakeUserStore{Users: make(map[int64]*model.User)}
}

func (s *FakeUserStore) GetFirstSeenAt(_ context.Context, userID int64) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return time.Time{}, false, s.Err
	}
	user, ok := s.Users[userID]
	if !ok {
		return time.Time{}, false, nil
	}
	return user.FirstSeenAt, true, nil
}

func (s *FakeUserStore) UpsertSeen(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	existing, ok := s.Users[user.ID]
	if ok {
		existing.Username = user.Username
		existing.FirstName = user.FirstName
		existing.LastName = user.LastName
		existing.LastSeenAt = user.LastSeenAt
		return nil
	}
	clone := *user
	s.Users[user.ID] = &clone
	return nil
}

func (s *FakeUserStore) CountUsers(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	return int64(len(s.Users)), nil
}

func (s *FakeUserStore) GetLastLeadAt(_ context.Context, userID int64) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return time.Time{}, false, s.Err
	}
	user, ok := s.Users[userID]
	if !ok || user.LastLeadAt == nil {
		return time.Time{}, false, nil
	}
	return *user.LastLeadAt, true, nil
}

func (s *FakeUserStore) SetLastLeadAt(_ context.Context, userID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if user, ok := s.Users[userID]; ok {
		user.LastLeadAt = &at
	}
	return nil
}

// FakeLeadSender records notified identities.
type FakeLeadSender struct {
	mu       sync.Mutex
	Notified []*initdata.Identity

	// Err, when set, is returned by NotifyLead.
	Err error
}

func (f *FakeLeadSender) NotifyLead(_ context.Context, identity *initdata.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Notified = append(f.Notified, identity)
	return nil
}

// Count returns how many leads were delivered.
func (f *FakeLeadSender) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Notified)
}

// FakeStatsCache is an in-memory unique-user count cache without TTL
// handling; tests expire entries by calling Invalidate.
type FakeStatsCache struct {
	mu    sync.Mutex
	count int64
	set   bool

	// Err, when set, is returned by both operations.
	Err error
}

func (c *FakeStatsCache) GetUserCount(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return 0, c.Err
	}
	if !c.set {
		return 0, errStatsMiss
	}
	return c.count, nil
}

func (c *FakeStatsCache) SetUserCount(_ context.Context, count int64, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.count = count
	c.set = true
	return nil
}

// Invalidate drops the cached value, simulating TTL expiry.
func (c *FakeStatsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set = false
}
