package services

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/agoranet/go-messenger-backend/internal/domain"
)

// fakeConversationRepo is an in-memory ConversationRepo for service tests.
type fakeConversationRepo struct {
	byID map[string]*domain.Conversation

	countErr error
	listErr  error
	hidden   map[string]string // conversationID -> userID that hid it
	deleted  map[string]bool
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		byID:    map[string]*domain.Conversation{},
		hidden:  map[string]string{},
		deleted: map[string]bool{},
	}
}

func (f *fakeConversationRepo) add(c *domain.Conversation) { f.byID[c.ID] = c }

func (f *fakeConversationRepo) GetOrCreateConversation(ctx context.Context, db *gorm.DB, userA, userB string) (*domain.Conversation, error) {
	u1, u2 := domain.CanonicalPair(userA, userB)
	for _, c := range f.byID {
		if c.User1ID == u1 && c.User2ID == u2 {
			return c, nil
		}
	}
	c := &domain.Conversation{ID: "conv-" + u1 + "-" + u2, User1ID: u1, User2ID: u2}
	f.byID[c.ID] = c
	return c, nil
}

func (f *fakeConversationRepo) GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	c, ok := f.byID[id]
	if !ok || f.deleted[id] {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (f *fakeConversationRepo) CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	var n int64
	for id, c := range f.byID {
		if c.IsParticipant(userID) && !f.deleted[id] && f.hidden[id] != userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeConversationRepo) ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Conversation
	for id, c := range f.byID {
		if c.IsParticipant(userID) && !f.deleted[id] && f.hidden[id] != userID {
			out = append(out, *c)
		}
	}
	if offset >= len(out) {
		return []domain.Conversation{}, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeConversationRepo) HideConversation(ctx context.Context, db *gorm.DB, conversationID, userID string) error {
	if _, ok := f.byID[conversationID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.hidden[conversationID] = userID
	return nil
}

func (f *fakeConversationRepo) DeleteConversation(ctx context.Context, db *gorm.DB, conversationID string) error {
	if _, ok := f.byID[conversationID]; !ok || f.deleted[conversationID] {
		return gorm.ErrRecordNotFound
	}
	f.deleted[conversationID] = true
	return nil
}

func TestConversationService_Start_SelfRejected(t *testing.T) {
	svc := NewConversationService(nil, newFakeConversationRepo())
	if _, err := svc.Start(context.Background(), "alice", "alice"); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("expected ErrSelfConversation, got %v", err)
	}
}

func TestConversationService_Start_SameThreadEitherDirection(t *testing.T) {
	svc := NewConversationService(nil, newFakeConversationRepo())

	c1, err := svc.Start(context.Background(), "bob", "alice")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	c2, err := svc.Start(context.Background(), "alice", "bob")
	if err != nil {
		t.Fatalf("start reversed: %v", err)
	}
	if c1.ID != c2.ID {
		t.Fatalf("directions diverged: %s vs %s", c1.ID, c2.ID)
	}
}

func TestConversationService_Get_MembershipEnforced(t *testing.T) {
	f := newFakeConversationRepo()
	f.add(&domain.Conversation{ID: "conv-1", User1ID: "alice", User2ID: "bob"})
	svc := NewConversationService(nil, f)

	if _, err := svc.Get(context.Background(), "alice", "conv-1"); err != nil {
		t.Fatalf("participant get: %v", err)
	}
	if _, err := svc.Get(context.Background(), "mallory", "conv-1"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "alice", "missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestConversationService_ListPage_DefaultsAndEmpty(t *testing.T) {
	f := newFakeConversationRepo()
	f.add(&domain.Conversation{ID: "conv-1", User1ID: "alice", User2ID: "bob"})
	f.add(&domain.Conversation{ID: "conv-2", User1ID: "alice", User2ID: "carol"})
	svc := NewConversationService(nil, f)

	items, total, err := svc.ListPage(context.Background(), "alice", 0, -5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("total=%d len=%d", total, len(items))
	}

	items, total, err = svc.ListPage(context.Background(), "nobody", 1, 20)
	if err != nil || total != 0 || items == nil || len(items) != 0 {
		t.Fatalf("empty list: items=%v total=%d err=%v", items, total, err)
	}
}

func TestConversationService_OtherUser(t *testing.T) {
	svc := NewConversationService(nil, newFakeConversationRepo())
	c := &domain.Conversation{ID: "conv-1", User1ID: "alice", User2ID: "bob"}

	peer, err := svc.OtherUser(c, "alice")
	if err != nil || peer != "bob" {
		t.Fatalf("peer=%q err=%v", peer, err)
	}
	peer, err = svc.OtherUser(c, "bob")
	if err != nil || peer != "alice" {
		t.Fatalf("peer=%q err=%v", peer, err)
	}
	if _, err := svc.OtherUser(c, "mallory"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestConversationService_Hide_OnlyForCaller(t *testing.T) {
	f := newFakeConversationRepo()
	f.add(&domain.Conversation{ID: "conv-1", User1ID: "alice", User2ID: "bob"})
	svc := NewConversationService(nil, f)

	if err := svc.Hide(context.Background(), "mallory", "conv-1"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if err := svc.Hide(context.Background(), "alice", "conv-1"); err != nil {
		t.Fatalf("hide: %v", err)
	}

	_, aliceTotal, _ := svc.ListPage(context.Background(), "alice", 1, 20)
	_, bobTotal, _ := svc.ListPage(context.Background(), "bob", 1, 20)
	if aliceTotal != 0 || bobTotal != 1 {
		t.Fatalf("hide leaked across users: alice=%d bob=%d", aliceTotal, bobTotal)
	}
}

func TestConversationService_Delete_RemovesForBoth(t *testing.T) {
	f := newFakeConversationRepo()
	f.add(&domain.Conversation{ID: "conv-1", User1ID: "alice", User2ID: "bob"})
	svc := NewConversationService(nil, f)

	if err := svc.Delete(context.Background(), "bob", "conv-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), "alice", "conv-1"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("deleted conversation still visible: %v", err)
	}
	if err := svc.Delete(context.Background(), "bob", "conv-1"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("double delete: %v", err)
	}
}
