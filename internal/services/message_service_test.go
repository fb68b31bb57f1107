package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/agoranet/go-messenger-backend/internal/activity"
	"github.com/agoranet/go-messenger-backend/internal/domain"
	"github.com/agoranet/go-messenger-backend/internal/repo"
)

// newServiceDB opens a throwaway sqlite database and migrates the full schema.
func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "svc.db")
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, derr := db.DB(); derr == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(
		&domain.Conversation{},
		&domain.Message{},
		&domain.MessageTranslation{},
		&domain.CallRecord{},
		&domain.DeviceToken{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeNotifier records dispatched real-time events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []struct {
		UserID string
		Event  string
	}
}

func (f *fakeNotifier) NotifyUser(ctx context.Context, userID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, struct {
		UserID string
		Event  string
	}{userID, event})
}

func (f *fakeNotifier) sent(userID, event string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.UserID == userID && e.Event == event {
			return true
		}
	}
	return false
}

// fakePusher records push notifications.
type fakePusher struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakePusher) PushToUser(ctx context.Context, userID, title, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID)
}

// fakeSink collects activity entries synchronously.
type fakeSink struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (f *fakeSink) Record(e activity.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeSink) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

func TestMessageService_Send_UpdatesPeerStateAtomically(t *testing.T) {
	db := newServiceDB(t)
	notifier := &fakeNotifier{}
	pusher := &fakePusher{}
	sink := &fakeSink{}
	svc := &MessageService{DB: db, Notify: notifier, Push: pusher, Activity: sink}
	ctx := context.Background()

	msg, err := svc.Send(ctx, "alice", "bob", "  hello  ", "", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Body != "hello" || msg.Type != domain.MessageTypeText {
		t.Fatalf("normalization failed: %+v", msg)
	}

	conv, err := repo.GetConversation(ctx, db, msg.ConversationID)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if conv.LastMessage != "hello" {
		t.Fatalf("preview not set: %q", conv.LastMessage)
	}
	if got := conv.UnreadFor("bob"); got != 1 {
		t.Fatalf("bob unread = %d, want 1", got)
	}
	if got := conv.UnreadFor("alice"); got != 0 {
		t.Fatalf("alice unread = %d, want 0", got)
	}

	if !notifier.sent("bob", EventNewMessage) {
		t.Fatalf("peer not notified: %+v", notifier.events)
	}
	if len(pusher.calls) != 1 || pusher.calls[0] != "bob" {
		t.Fatalf("push calls: %+v", pusher.calls)
	}
	if got := sink.actions(); len(got) != 1 || got[0] != "message.send" {
		t.Fatalf("activity: %+v", got)
	}
}

func TestMessageService_Send_Validation(t *testing.T) {
	svc := &MessageService{DB: newServiceDB(t), MaxBodyRunes: 5}
	ctx := context.Background()

	if _, err := svc.Send(ctx, "alice", "bob", "   ", "", nil); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("blank body: %v", err)
	}
	if _, err := svc.Send(ctx, "alice", "bob", "toolong", "", nil); !errors.Is(err, ErrBodyTooLong) {
		t.Fatalf("over cap: %v", err)
	}
	// The cap counts runes, not bytes.
	if _, err := svc.Send(ctx, "alice", "bob", "héllo", "", nil); err != nil {
		t.Fatalf("five runes rejected: %v", err)
	}
	if _, err := svc.Send(ctx, "alice", "bob", "hi", "video", nil); !errors.Is(err, ErrInvalidMessageType) {
		t.Fatalf("bad type: %v", err)
	}
	if _, err := svc.Send(ctx, "alice", "alice", "hi", "", nil); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("self send: %v", err)
	}
}

func TestMessageService_Send_ParentMustBeInThread(t *testing.T) {
	svc := &MessageService{DB: newServiceDB(t)}
	ctx := context.Background()

	root, err := svc.Send(ctx, "alice", "bob", "root", "", nil)
	if err != nil {
		t.Fatalf("send root: %v", err)
	}
	reply, err := svc.Send(ctx, "bob", "alice", "reply", "", &root.ID)
	if err != nil {
		t.Fatalf("send reply: %v", err)
	}
	if reply.ParentID == nil || *reply.ParentID != root.ID {
		t.Fatalf("parent not stored: %+v", reply)
	}

	// A parent from another conversation is rejected.
	other, err := svc.Send(ctx, "alice", "carol", "elsewhere", "", nil)
	if err != nil {
		t.Fatalf("send other: %v", err)
	}
	if _, err := svc.Send(ctx, "alice", "bob", "bad reply", "", &other.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("cross-thread parent: %v", err)
	}
	missing := int64(99999)
	if _, err := svc.Send(ctx, "alice", "bob", "bad reply", "", &missing); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("missing parent: %v", err)
	}
}

func TestMessageService_MarkConversationRead_FullFlow(t *testing.T) {
	db := newServiceDB(t)
	notifier := &fakeNotifier{}
	svc := &MessageService{DB: db, Notify: notifier}
	ctx := context.Background()

	if _, err := svc.Send(ctx, "alice", "bob", "one", "", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg2, err := svc.Send(ctx, "alice", "bob", "two", "", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	n, err := svc.MarkConversationRead(ctx, "bob", msg2.ConversationID)
	if err != nil {
		t.Fatalf("bulk read: %v", err)
	}
	if n != 2 {
		t.Fatalf("marked %d, want 2", n)
	}

	conv, _ := repo.GetConversation(ctx, db, msg2.ConversationID)
	if conv.UnreadFor("bob") != 0 {
		t.Fatalf("bob unread not reset: %d", conv.UnreadFor("bob"))
	}
	if !notifier.sent("alice", EventMessageRead) {
		t.Fatalf("sender not told about read: %+v", notifier.events)
	}

	// Replay marks nothing and stays silent.
	notifier.events = nil
	n, err = svc.MarkConversationRead(ctx, "bob", msg2.ConversationID)
	if err != nil || n != 0 {
		t.Fatalf("replay: n=%d err=%v", n, err)
	}
	if notifier.sent("alice", EventMessageRead) {
		t.Fatalf("replay should not notify")
	}

	if _, err := svc.MarkConversationRead(ctx, "mallory", msg2.ConversationID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger bulk read: %v", err)
	}
}

func TestMessageService_MarkDeliveredAndRead_RecipientOnly(t *testing.T) {
	svc := &MessageService{DB: newServiceDB(t), Notify: &fakeNotifier{}}
	ctx := context.Background()

	msg, err := svc.Send(ctx, "alice", "bob", "hi", "", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.MarkDelivered(ctx, "alice", msg.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("sender self-deliver: %v", err)
	}
	if err := svc.MarkDelivered(ctx, "bob", msg.ID); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := svc.MarkRead(ctx, "bob", msg.ID); err != nil {
		t.Fatalf("read: %v", err)
	}
	got, _ := svc.Get(ctx, "alice", msg.ID)
	if !got.Delivered || !got.Read {
		t.Fatalf("flags not raised: %+v", got)
	}
	if err := svc.MarkRead(ctx, "mallory", msg.ID); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger read: %v", err)
	}
}

func TestMessageService_Edit_SenderOnly_PreviewSync(t *testing.T) {
	db := newServiceDB(t)
	svc := &MessageService{DB: db}
	ctx := context.Background()

	first, _ := svc.Send(ctx, "alice", "bob", "first", "", nil)
	last, _ := svc.Send(ctx, "alice", "bob", "last", "", nil)

	if _, err := svc.Edit(ctx, "bob", last.ID, "hijack"); !errors.Is(err, ErrNotSender) {
		t.Fatalf("non-sender edit: %v", err)
	}

	updated, err := svc.Edit(ctx, "alice", last.ID, "last v2")
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if updated.Body != "last v2" || !updated.Edited {
		t.Fatalf("edit not applied: %+v", updated)
	}
	conv, _ := repo.GetConversation(ctx, db, last.ConversationID)
	if conv.LastMessage != "last v2" {
		t.Fatalf("preview stale after latest-message edit: %q", conv.LastMessage)
	}

	// Editing an older message leaves the preview alone.
	if _, err := svc.Edit(ctx, "alice", first.ID, "first v2"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	conv, _ = repo.GetConversation(ctx, db, last.ConversationID)
	if conv.LastMessage != "last v2" {
		t.Fatalf("preview overwritten by old-message edit: %q", conv.LastMessage)
	}
}

func TestMessageService_Edit_InvalidatesTranslationsWhenEnabled(t *testing.T) {
	db := newServiceDB(t)
	svc := &MessageService{DB: db, InvalidateTranslations: true}
	ctx := context.Background()

	msg, _ := svc.Send(ctx, "alice", "bob", "hello", "", nil)
	if _, err := repo.CreateTranslation(ctx, db, msg.ID, "bob", "fr", "bonjour"); err != nil {
		t.Fatalf("seed translation: %v", err)
	}

	if _, err := svc.Edit(ctx, "alice", msg.ID, "hello again"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	if _, err := repo.GetTranslation(ctx, db, msg.ID, "bob", "fr"); err != gorm.ErrRecordNotFound {
		t.Fatalf("stale translation survived: %v", err)
	}
}

func TestMessageService_Delete_RecomputesPreview(t *testing.T) {
	db := newServiceDB(t)
	svc := &MessageService{DB: db}
	ctx := context.Background()

	first, _ := svc.Send(ctx, "alice", "bob", "keep", "", nil)
	last, _ := svc.Send(ctx, "alice", "bob", "remove", "", nil)

	if err := svc.Delete(ctx, "bob", last.ID); !errors.Is(err, ErrNotSender) {
		t.Fatalf("non-sender delete: %v", err)
	}
	if err := svc.Delete(ctx, "alice", last.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	conv, _ := repo.GetConversation(ctx, db, last.ConversationID)
	if conv.LastMessage != "keep" {
		t.Fatalf("preview not recomputed: %q", conv.LastMessage)
	}

	// Deleting the final message clears the preview.
	if err := svc.Delete(ctx, "alice", first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	conv, _ = repo.GetConversation(ctx, db, last.ConversationID)
	if conv.LastMessage != "" {
		t.Fatalf("preview not cleared: %q", conv.LastMessage)
	}

	// Deleted rows stay reachable by direct lookup.
	got, err := svc.Get(ctx, "bob", last.ID)
	if err != nil || !got.Deleted {
		t.Fatalf("direct lookup of deleted: %+v err=%v", got, err)
	}
}

func TestMessageService_ListAndSearch(t *testing.T) {
	svc := &MessageService{DB: newServiceDB(t)}
	ctx := context.Background()

	var convID string
	for _, body := range []string{"alpha", "beta", "gamma"} {
		m, err := svc.Send(ctx, "alice", "bob", body, "", nil)
		if err != nil {
			t.Fatalf("send: %v", err)
		}
		convID = m.ConversationID
	}

	items, total, err := svc.ListPage(ctx, "bob", convID, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(items) != 2 || items[0].Body != "gamma" {
		t.Fatalf("page wrong: total=%d items=%+v", total, items)
	}
	if _, _, err := svc.ListPage(ctx, "mallory", convID, 1, 20); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("stranger list: %v", err)
	}

	found, err := svc.Search(ctx, "alice", convID, "amm", 10)
	if err != nil || len(found) != 1 || found[0].Body != "gamma" {
		t.Fatalf("search: %+v err=%v", found, err)
	}
	empty, err := svc.Search(ctx, "alice", convID, "   ", 10)
	if err != nil || len(empty) != 0 {
		t.Fatalf("blank query: %+v err=%v", empty, err)
	}
	if !strings.Contains(found[0].Body, "amm") {
		t.Fatalf("match does not contain query")
	}
}
