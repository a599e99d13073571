//go:build integration

package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cookiespooky/np-tma-backend/internal/model"
)

func newUserTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	repo, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(repo.Close)

	if err := repo.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if _, err := repo.pool.Exec(ctx, "TRUNCATE users"); err != nil {
		t.Fatalf("failed to truncate users: %v", err)
	}

	return ctx, repo
}

func TestIntegrationUserRepository_UpsertPreservesFirstSeen(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	firstVisit := time.Now().UTC().Truncate(time.Microsecond)
	user := &model.User{
		ID:          42,
		Username:    "rogue",
		FirstName:   "Andrew",
		FirstSeenAt: firstVisit,
		LastSeenAt:  firstVisit,
	}
	if err := repo.UpsertSeen(ctx, user); err != nil {
		t.Fatalf("first UpsertSeen failed: %v", err)
	}

	secondVisit := firstVisit.Add(10 * time.Second)
	user.Username = "rogue_renamed"
	user.FirstSeenAt = secondVisit // must be ignored by ON CONFLICT
	user.LastSeenAt = secondVisit
	if err := repo.UpsertSeen(ctx, user); err != nil {
		t.Fatalf("second UpsertSeen failed: %v", err)
	}

	firstSeen, ok, err := repo.GetFirstSeenAt(ctx, 42)
	if err != nil {
		t.Fatalf("GetFirstSeenAt failed: %v", err)
	}
	if !ok {
		t.Fatal("user should exist")
	}
	if !firstSeen.Equal(firstVisit) {
		t.Errorf("first_seen_at = %v, want original %v", firstSeen, firstVisit)
	}
}

func TestIntegrationUserRepository_GetFirstSeenAt_Absent(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	_, ok, err := repo.GetFirstSeenAt(ctx, 999)
	if err != nil {
		t.Fatalf("GetFirstSeenAt failed: %v", err)
	}
	if ok {
		t.Error("unseen user should report absent")
	}
}

func TestIntegrationUserRepository_CountUsers(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	now := time.Now().UTC()
	for _, id := range []int64{1, 2, 3} {
		user := &model.User{ID: id, FirstSeenAt: now, LastSeenAt: now}
		if err := repo.UpsertSeen(ctx, user); err != nil {
			t.Fatalf("UpsertSeen(%d) failed: %v", id, err)
		}
	}
	// Second visit must not inflate the count.
	if err := repo.UpsertSeen(ctx, &model.User{ID: 2, FirstSeenAt: now, LastSeenAt: now}); err != nil {
		t.Fatalf("repeat UpsertSeen failed: %v", err)
	}

	count, err := repo.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestIntegrationUserRepository_LeadTimestamps(t *testing.T) {
	ctx, repo := newUserTestEnv(t)

	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := repo.UpsertSeen(ctx, &model.User{ID: 42, FirstSeenAt: now, LastSeenAt: now}); err != nil {
		t.Fatalf("UpsertSeen failed: %v", err)
	}

	if _, ok, err := repo.GetLastLeadAt(ctx, 42); err != nil {
		t.Fatalf("GetLastLeadAt failed: %v", err)
	} else if ok {
		t.Error("last_lead_at should be absent before the first lead")
	}

	if err := repo.SetLastLeadAt(ctx, 42, now); err != nil {
		t.Fatalf("SetLastLeadAt failed: %v", err)
	}

	lastLead, ok, err := repo.GetLastLeadAt(ctx, 42)
	if err != nil {
		t.Fatalf("GetLastLeadAt failed: %v", err)
	}
	if !ok {
		t.Fatal("last_lead_at should be present after SetLastLeadAt")
	}
	if !lastLead.Equal(now) {
		t.Errorf("last_lead_at = %v, want %v", lastLead, now)
	}
}
