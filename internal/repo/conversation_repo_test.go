package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/agoranet/go-messenger-backend/internal/domain"
)

func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func TestGetOrCreateConversation_CanonicalAndIdempotent(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{})
	ctx := context.Background()

	c1, err := GetOrCreateConversation(ctx, db, "bob", "alice")
	if err != nil {
		t.Fatalf("GetOrCreateConversation: %v", err)
	}
	if c1.User1ID != "alice" || c1.User2ID != "bob" {
		t.Fatalf("pair not canonical: %+v", c1)
	}

	// Reversed arguments must address the same row.
	c2, err := GetOrCreateConversation(ctx, db, "alice", "bob")
	if err != nil {
		t.Fatalf("second GetOrCreateConversation: %v", err)
	}
	if c2.ID != c1.ID {
		t.Fatalf("expected same conversation, got %s and %s", c1.ID, c2.ID)
	}

	var total int64
	db.Model(&domain.Conversation{}).Count(&total)
	if total != 1 {
		t.Fatalf("expected exactly one row per pair, got %d", total)
	}
}

func TestGetOrCreateConversation_RevivesSoftDeletedRow(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{})
	ctx := context.Background()

	c1, err := GetOrCreateConversation(ctx, db, "a", "b")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := IncrementUnread(ctx, db, c1.ID, "b"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := UpdatePreview(ctx, db, c1.ID, "old preview"); err != nil {
		t.Fatalf("preview: %v", err)
	}
	if err := DeleteConversation(ctx, db, c1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := GetConversation(ctx, db, c1.ID); err != gorm.ErrRecordNotFound {
		t.Fatalf("deleted row should be invisible, got err=%v", err)
	}

	// Starting the pair again revives the same row with fresh state.
	c2, err := GetOrCreateConversation(ctx, db, "b", "a")
	if err != nil {
		t.Fatalf("revive: %v", err)
	}
	if c2.ID != c1.ID {
		t.Fatalf("expected revived row %s, got %s", c1.ID, c2.ID)
	}
	if c2.User1Unread != 0 || c2.User2Unread != 0 || c2.LastMessage != "" {
		t.Fatalf("revived row kept stale state: %+v", c2)
	}
}

func TestIncrementAndResetUnread_PerSlot(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{})
	ctx := context.Background()

	c, err := GetOrCreateConversation(ctx, db, "a", "b")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Only b's slot moves.
	if err := IncrementUnread(ctx, db, c.ID, "b"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := IncrementUnread(ctx, db, c.ID, "b"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	got, _ := GetConversation(ctx, db, c.ID)
	if got.UnreadFor("b") != 2 || got.UnreadFor("a") != 0 {
		t.Fatalf("unread counters wrong: %+v", got)
	}

	// Reset only touches b.
	if err := ResetUnread(ctx, db, c.ID, "b"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, _ = GetConversation(ctx, db, c.ID)
	if got.UnreadFor("b") != 0 {
		t.Fatalf("reset failed: %+v", got)
	}

	// Non-participant id is a silent no-op.
	if err := IncrementUnread(ctx, db, c.ID, "stranger"); err != nil {
		t.Fatalf("no-op increment errored: %v", err)
	}
	got, _ = GetConversation(ctx, db, c.ID)
	if got.User1Unread != 0 || got.User2Unread != 0 {
		t.Fatalf("stranger moved a counter: %+v", got)
	}
}

func TestUpdatePreview_NotFound(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{})
	if err := UpdatePreview(context.Background(), db, "missing", "p"); err != gorm.ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestHideConversation_PerUserVisibility(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{})
	ctx := context.Background()

	c, _ := GetOrCreateConversation(ctx, db, "a", "b")

	if err := HideConversation(ctx, db, c.ID, "a"); err != nil {
		t.Fatalf("hide: %v", err)
	}

	aTotal, _ := CountConversations(ctx, db, "a")
	bTotal, _ := CountConversations(ctx, db, "b")
	if aTotal != 0 || bTotal != 1 {
		t.Fatalf("hide leaked across users: a=%d b=%d", aTotal, bTotal)
	}

	if err := HideConversation(ctx, db, c.ID, "stranger"); err != gorm.ErrRecordNotFound {
		t.Fatalf("expected ErrRecordNotFound for stranger, got %v", err)
	}
}

func TestListConversationsPage_MostRecentFirst(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{})
	ctx := context.Background()

	c1, _ := GetOrCreateConversation(ctx, db, "me", "p1")
	c2, _ := GetOrCreateConversation(ctx, db, "me", "p2")

	// Touch c1 so it becomes the most recently active.
	time.Sleep(5 * time.Millisecond)
	if err := UpdatePreview(ctx, db, c1.ID, "newest"); err != nil {
		t.Fatalf("preview: %v", err)
	}

	items, err := ListConversationsPage(ctx, db, "me", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].ID != c1.ID || items[1].ID != c2.ID {
		t.Fatalf("unexpected ordering: %+v", items)
	}
}

func TestGetOrCreateConversation_FirstContactRace(t *testing.T) {
	db := newRepoDB(t, &domain.Conversation{})
	ctx := context.Background()

	// Slip a rival row in between the miss and the insert, the way a
	// concurrent first-contact send from the peer would.
	seeded := false
	err := db.Callback().Create().Before("gorm:create").Register("rival_insert", func(tx *gorm.DB) {
		if seeded || tx.Statement.Table != "conversations" {
			return
		}
		seeded = true
		rival := domain.Conversation{
			ID:        "rival-conversation",
			User1ID:   "alice",
			User2ID:   "bob",
			CreatedAt: time.Now().UTC(),
		}
		if serr := db.Session(&gorm.Session{NewDB: true}).Create(&rival).Error; serr != nil {
			t.Errorf("seed rival row: %v", serr)
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	c, err := GetOrCreateConversation(ctx, db, "bob", "alice")
	if err != nil {
		t.Fatalf("GetOrCreateConversation after losing the race: %v", err)
	}
	if c.ID != "rival-conversation" {
		t.Fatalf("expected the winner's row, got %+v", c)
	}

	var total int64
	db.Model(&domain.Conversation{}).Count(&total)
	if total != 1 {
		t.Fatalf("expected exactly one row per pair, got %d", total)
	}
}
