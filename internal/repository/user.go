package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cookiespooky/np-tma-backend/internal/model"
)

// GetFirstSeenAt returns the recorded first-seen timestamp for a user.
// The second return value is false when the user has never been seen.
func (r *Repository) GetFirstSeenAt(ctx context.Context, userID int64) (time.Time, bool, error) {
	query := `
		SELECT first_seen_at
		FROM users
		WHERE user_id = $1
	`

	var firstSeen time.Time
	err := r.pool.QueryRow(ctx, query, userID).Scan(&firstSeen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get first_seen_at: %w", err)
	}

	return firstSeen, true, nil
}

// UpsertSeen inserts or refreshes a user row from a verified request.
// The ON CONFLICT clause never touches first_seen_at, so the earliest
// write for a key wins even under concurrent first requests.
func (r *Repository) UpsertSeen(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (user_id, username, first_name, last_name, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			username     = EXCLUDED.username,
			first_name   = EXCLUDED.first_name,
			last_name    = EXCLUDED.last_name,
			last_seen_at = EXCLUDED.last_seen_at
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Username,
		user.FirstName,
		user.LastName,
		user.FirstSeenAt,
		user.LastSeenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

// CountUsers returns the total number of distinct users ever seen.
// A full-table aggregate; the statistic is allowed to be stale.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}

	return count, nil
}

// GetLastLeadAt returns the timestamp of the user's last accepted lead.
// The second return value is false when the user has no prior lead or
// does not exist.
func (r *Repository) GetLastLeadAt(ctx context.Context, userID int64) (time.Time, bool, error) {
	query := `
		SELECT last_lead_at
		FROM users
		WHERE user_id = $1
	`

	var lastLead *time.Time
	err := r.pool.QueryRow(ctx, query, userID).Scan(&lastLead)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to get last_lead_at: %w", err)
	}

	if lastLead == nil {
		return time.Time{}, false, nil
	}
	return *lastLead, true, nil
}

// SetLastLeadAt records the dispatch time of an accepted lead.
func (r *Repository) SetLastLeadAt(ctx context.Context, userID int64, at time.Time) error {
	query := `
		UPDATE users
		SET last_lead_at = $2
		WHERE user_id = $1
	`

	_, err := r.pool.Exec(ctx, query, userID, at)
	if err != nil {
		return fmt.Errorf("failed to set last_lead_at: %w", err)
	}

	return nil
}
