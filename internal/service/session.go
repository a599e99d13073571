// Package service provides business logic for the application.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cookiespooky/np-tma-backend/internal/initdata"
	"github.com/cookiespooky/np-tma-backend/internal/model"
)

// DefaultLeadWindow is the minimum interval between accepted leads from
// the same user.
const DefaultLeadWindow = 5 * time.Minute

// UserStore is the persistence surface the session service needs.
type UserStore interface {
	GetFirstSeenAt(ctx context.Context, userID int64) (time.Time, bool, error)
	UpsertSeen(ctx context.Context, user *model.User) error
	CountUsers(ctx context.Context) (int64, error)
	GetLastLeadAt(ctx context.Context, userID int64) (time.Time, bool, error)
	SetLastLeadAt(ctx context.Context, userID int64, at time.Time) error
}

// StatsCache caches the unique-user aggregate. Implementations signal a
// miss with an error; any cache failure degrades to the store count.
type StatsCache interface {
	GetUserCount(ctx context.Context) (int64, error)
	SetUserCount(ctx context.Context, count int64, ttl time.Duration) error
}

// LeadSender delivers one lead notification to the operator.
type LeadSender interface {
	NotifyLead(ctx context.Context, identity *initdata.Identity) error
}

// RateLimitError reports how long the user must wait before the next lead.
type RateLimitError struct {
	Remaining time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry in %ds", int64(e.Remaining.Seconds()))
}

// SessionService verifies Mini App sessions, tracks user activity, and
// rate-limits lead submissions.
type SessionService struct {
	verifier   *initdata.Verifier
	store      UserStore
	stats      StatsCache
	sender     LeadSender
	leadWindow time.Duration
	statsTTL   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewSessionService creates a SessionService. A non-positive leadWindow
// falls back to DefaultLeadWindow. stats may be nil to disable caching.
func NewSessionService(
	verifier *initdata.Verifier,
	store UserStore,
	stats StatsCache,
	sender LeadSender,
	leadWindow time.Duration,
	statsTTL time.Duration,
	logger *slog.Logger,
) *SessionService {
	if leadWindow <= 0 {
		leadWindow = DefaultLeadWindow
	}
	return &SessionService{
		verifier:   verifier,
		store:      store,
		stats:      stats,
		sender:     sender,
		leadWindow: leadWindow,
		statsTTL:   statsTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// Validate verifies the payload, records the visit, and returns the
// identity together with the unique-user count. When verification
// succeeded but a later step failed, the identity is still returned so
// the caller can attribute the failure.
func (s *SessionService) Validate(ctx context.Context, raw string) (*initdata.Identity, int64, error) {
	identity, err := s.verifier.Verify(raw)
	if err != nil {
		return nil, 0, err
	}

	if err := s.recordSeen(ctx, identity); err != nil {
		return identity, 0, err
	}

	count, err := s.uniqueUsers(ctx)
	if err != nil {
		return identity, 0, err
	}

	return identity, count, nil
}

// SubmitLead verifies the payload, records the visit, and forwards the
// lead unless the user is inside the rate-limit window. last_lead_at is
// written only after the notification went out.
func (s *SessionService) SubmitLead(ctx context.Context, raw string) (*initdata.Identity, error) {
	identity, err := s.verifier.Verify(raw)
	if err != nil {
		return nil, err
	}

	if err := s.recordSeen(ctx, identity); err != nil {
		return identity, err
	}

	now := s.now()
	lastLead, hasLead, err := s.store.GetLastLeadAt(ctx, identity.ID)
	if err != nil {
		return identity, err
	}
	if hasLead {
		if elapsed := now.Sub(lastLead); elapsed < s.leadWindow {
			return identity, &RateLimitError{Remaining: s.leadWindow - elapsed}
		}
	}

	if err := s.sender.NotifyLead(ctx, identity); err != nil {
		return identity, err
	}

	if err := s.store.SetLastLeadAt(ctx, identity.ID, now); err != nil {
		return identity, err
	}

	return identity, nil
}

// recordSeen upserts the user row, carrying an existing first_seen_at
// forward so it is set exactly once per user.
func (s *SessionService) recordSeen(ctx context.Context, identity *initdata.Identity) error {
	now := s.now()

	firstSeen, seen, err := s.store.GetFirstSeenAt(ctx, identity.ID)
	if err != nil {
		return err
	}
	if !seen {
		firstSeen = now
	}

	return s.store.UpsertSeen(ctx, &model.User{
		ID:          identity.ID,
		Username:    identity.Username,
		FirstName:   identity.FirstName,
		LastName:    identity.LastName,
		FirstSeenAt: firstSeen,
		LastSeenAt:  now,
	})
}

// uniqueUsers serves the aggregate through the cache when possible. The
// statistic is informational, so cache failures only degrade to a store
// count; they never fail the request.
func (s *SessionService) uniqueUsers(ctx context.Context) (int64, error) {
	if s.stats != nil {
		if count, err := s.stats.GetUserCount(ctx); err == nil {
			return count, nil
		}
	}

	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return 0, err
	}

	if s.stats != nil {
		if err := s.stats.SetUserCount(ctx, count, s.statsTTL); err != nil {
			s.logger.Warn("failed to refresh stats cache", "error", err)
		}
	}

	return count, nil
}
