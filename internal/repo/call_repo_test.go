package repo

import (
	"context"
	"testing"
	"time"

	"github.com/agoranet/go-messenger-backend/internal/domain"
)

func TestCreateCallRecord_AssignsIDAndTimestamp(t *testing.T) {
	db := newRepoDB(t, &domain.CallRecord{})
	ctx := context.Background()

	dur := int64(42)
	ended := time.Now().UTC()
	rec, err := CreateCallRecord(ctx, db, &domain.CallRecord{
		ConversationID: "conv-1",
		CallerID:       "alice",
		CalleeID:       "bob",
		Status:         domain.CallStatusAccepted,
		Video:          true,
		StartedAt:      ended.Add(-42 * time.Second),
		EndedAt:        &ended,
		DurationSec:    &dur,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == "" || rec.CreatedAt.IsZero() {
		t.Fatalf("missing generated fields: %+v", rec)
	}

	total, err := CountCallRecords(ctx, db, "conv-1")
	if err != nil || total != 1 {
		t.Fatalf("count = %d, err = %v", total, err)
	}
}

func TestListCallRecordsPage_NewestFirst(t *testing.T) {
	db := newRepoDB(t, &domain.CallRecord{})
	ctx := context.Background()

	old := &domain.CallRecord{ConversationID: "conv-1", CallerID: "a", CalleeID: "b", Status: domain.CallStatusMissed, StartedAt: time.Now().UTC()}
	if _, err := CreateCallRecord(ctx, db, old); err != nil {
		t.Fatalf("create: %v", err)
	}
	// CreatedAt drives ordering; push the first row into the past.
	if err := db.Model(&domain.CallRecord{}).Where("id = ?", old.ID).
		Update("created_at", time.Now().UTC().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
	recent := &domain.CallRecord{ConversationID: "conv-1", CallerID: "b", CalleeID: "a", Status: domain.CallStatusRejected, StartedAt: time.Now().UTC()}
	if _, err := CreateCallRecord(ctx, db, recent); err != nil {
		t.Fatalf("create: %v", err)
	}
	other := &domain.CallRecord{ConversationID: "conv-2", CallerID: "a", CalleeID: "c", Status: domain.CallStatusCancelled, StartedAt: time.Now().UTC()}
	if _, err := CreateCallRecord(ctx, db, other); err != nil {
		t.Fatalf("create: %v", err)
	}

	items, err := ListCallRecordsPage(ctx, db, "conv-1", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 2 || items[0].ID != recent.ID || items[1].ID != old.ID {
		t.Fatalf("unexpected order: %+v", items)
	}

	page, err := ListCallRecordsPage(ctx, db, "conv-1", 1, 1)
	if err != nil || len(page) != 1 || page[0].ID != old.ID {
		t.Fatalf("offset paging broken: %+v err=%v", page, err)
	}
}
