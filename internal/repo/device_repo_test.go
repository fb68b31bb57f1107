package repo

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/domain"
)

func TestUpsertDeviceToken_ReassignsAcrossUsers(t *testing.T) {
	db := newRepoDB(t, &domain.DeviceToken{})
	ctx := context.Background()

	first, err := UpsertDeviceToken(ctx, db, "alice", "tok-1", domain.PlatformIOS)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	// The device changed hands: same token, new owner, same row.
	second, err := UpsertDeviceToken(ctx, db, "bob", "tok-1", domain.PlatformAndroid)
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected row reuse, got %s then %s", first.ID, second.ID)
	}
	if second.UserID != "bob" || second.Platform != domain.PlatformAndroid {
		t.Fatalf("reassignment incomplete: %+v", second)
	}

	aliceTokens, err := ListDeviceTokens(ctx, db, "alice")
	if err != nil || len(aliceTokens) != 0 {
		t.Fatalf("stale owner kept token: %+v err=%v", aliceTokens, err)
	}
	bobTokens, err := ListDeviceTokens(ctx, db, "bob")
	if err != nil || len(bobTokens) != 1 {
		t.Fatalf("new owner missing token: %+v err=%v", bobTokens, err)
	}
}

func TestDeleteDeviceToken_OwnershipEnforced(t *testing.T) {
	db := newRepoDB(t, &domain.DeviceToken{})
	ctx := context.Background()

	if _, err := UpsertDeviceToken(ctx, db, "alice", "tok-2", domain.PlatformAndroid); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := DeleteDeviceToken(ctx, db, "bob", "tok-2"); err != gorm.ErrRecordNotFound {
		t.Fatalf("foreign delete should fail: %v", err)
	}
	if err := DeleteDeviceToken(ctx, db, "alice", "tok-2"); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if err := DeleteDeviceToken(ctx, db, "alice", "tok-2"); err != gorm.ErrRecordNotFound {
		t.Fatalf("double delete: %v", err)
	}
}

func TestListDeviceTokens_OldestFirst(t *testing.T) {
	db := newRepoDB(t, &domain.DeviceToken{})
	ctx := context.Background()

	a, _ := UpsertDeviceToken(ctx, db, "alice", "tok-a", domain.PlatformIOS)
	b, _ := UpsertDeviceToken(ctx, db, "alice", "tok-b", domain.PlatformAndroid)

	out, err := ListDeviceTokens(ctx, db, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 || out[0].ID != a.ID || out[1].ID != b.ID {
		t.Fatalf("unexpected order: %+v", out)
	}
}
