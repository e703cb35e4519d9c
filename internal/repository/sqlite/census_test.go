package sqlite

import (
	"context"
	"testing"

	"github.com/Endika/participacion/internal/model"
	"github.com/Endika/participacion/internal/repository"
)

// =========================================================================
// FAILED CENSUS CALL TESTS
// =========================================================================

func TestFailedCensusCalls(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := createTestAccount(t, db, "censususer", "census@example.com")

	count, err := db.FailedCensusCallCount(ctx, account.ID)
	if err != nil {
		t.Fatalf("FailedCensusCallCount() error = %v", err)
	}
	if count != 0 {
		t.Errorf("initial count = %d, want 0", count)
	}

	for i := 0; i < 3; i++ {
		call := &model.FailedCensusCall{
			AccountID:      account.ID,
			DocumentType:   "1",
			DocumentNumber: "00000000X",
		}
		if err := db.RecordFailedCensusCall(ctx, call); err != nil {
			t.Fatalf("RecordFailedCensusCall() error = %v", err)
		}
		if call.ID == "" {
			t.Error("RecordFailedCensusCall() did not set call.ID")
		}
	}

	count, err = db.FailedCensusCallCount(ctx, account.ID)
	if err != nil {
		t.Fatalf("FailedCensusCallCount() error = %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

// =========================================================================
// NOTIFICATION TESTS
// =========================================================================

func TestNotifications_CreateAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := createTestAccount(t, db, "notifyuser", "notify@example.com")
	other := createTestAccount(t, db, "bystander", "bystander@example.com")

	for _, id := range []string{"prop-1", "prop-2"} {
		n := &model.Notification{
			AccountID:      account.ID,
			NotifiableType: model.ContentProposal,
			NotifiableID:   id,
		}
		if err := db.CreateNotification(ctx, n); err != nil {
			t.Fatalf("CreateNotification() error = %v", err)
		}
	}

	list, err := db.NotificationsByAccount(ctx, account.ID, repository.ListOptions{})
	if err != nil {
		t.Fatalf("NotificationsByAccount() error = %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("NotificationsByAccount() = %d rows, want 2", len(list))
	}
	for _, n := range list {
		if n.Read() {
			t.Errorf("fresh notification %s reported as read", n.ID)
		}
	}

	otherList, err := db.NotificationsByAccount(ctx, other.ID, repository.ListOptions{})
	if err != nil {
		t.Fatalf("NotificationsByAccount() other error = %v", err)
	}
	if len(otherList) != 0 {
		t.Errorf("other account sees %d notifications, want 0", len(otherList))
	}
}

func TestNotifications_MarkRead(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := createTestAccount(t, db, "readuser", "read@example.com")

	n := &model.Notification{
		AccountID:      account.ID,
		NotifiableType: model.ContentDebate,
		NotifiableID:   "debate-1",
	}
	if err := db.CreateNotification(ctx, n); err != nil {
		t.Fatalf("CreateNotification() error = %v", err)
	}

	if err := db.MarkNotificationRead(ctx, n.ID); err != nil {
		t.Fatalf("MarkNotificationRead() error = %v", err)
	}
	list, _ := db.NotificationsByAccount(ctx, account.ID, repository.ListOptions{})
	if len(list) != 1 || !list[0].Read() {
		t.Fatal("notification not marked read")
	}
	firstReadAt := list[0].ReadAt

	// Marking again keeps the original timestamp
	if err := db.MarkNotificationRead(ctx, n.ID); err != nil {
		t.Fatalf("MarkNotificationRead() second error = %v", err)
	}
	list, _ = db.NotificationsByAccount(ctx, account.ID, repository.ListOptions{})
	if !list[0].ReadAt.Equal(*firstReadAt) {
		t.Errorf("ReadAt changed on re-mark: %v vs %v", list[0].ReadAt, firstReadAt)
	}
}

func TestNotifications_Pagination(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	account := createTestAccount(t, db, "pageuser", "page@example.com")

	for i := 0; i < 5; i++ {
		n := &model.Notification{
			AccountID:      account.ID,
			NotifiableType: model.ContentComment,
			NotifiableID:   "c",
		}
		if err := db.CreateNotification(ctx, n); err != nil {
			t.Fatalf("CreateNotification() error = %v", err)
		}
	}

	page, err := db.NotificationsByAccount(ctx, account.ID, repository.ListOptions{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("NotificationsByAccount() error = %v", err)
	}
	if len(page) != 2 {
		t.Errorf("page size = %d, want 2", len(page))
	}

	rest, err := db.NotificationsByAccount(ctx, account.ID, repository.ListOptions{Limit: 10, Offset: 4})
	if err != nil {
		t.Fatalf("NotificationsByAccount() offset error = %v", err)
	}
	if len(rest) != 1 {
		t.Errorf("offset page size = %d, want 1", len(rest))
	}
}
