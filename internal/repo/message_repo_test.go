package repo

import (
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zapvite/go-wa-backend/internal/domain"
)

// test DB helper
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	// one connection keeps concurrent tests free of SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedScheduled(t *testing.T, db *gorm.DB, userID string, at time.Time) *domain.Message {
	t.Helper()
	m := &domain.Message{
		UserID:      userID,
		ContactID:   uuid.NewString(),
		Content:     "hello",
		Status:      domain.StatusScheduled,
		ScheduledAt: &at,
	}
	if err := CreateMessage(db, m); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return m
}

func TestCreateMessage_DefaultsChainRoot(t *testing.T) {
	db := newRepoDB(t)

	m := &domain.Message{UserID: "u1", ContactID: "c1", Content: "oi", Status: domain.StatusPending}
	if err := CreateMessage(db, m); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if m.ID == "" || m.OriginalMessageID != m.ID {
		t.Fatalf("chain root not defaulted: %+v", m)
	}
	if m.Kind != domain.KindText || m.Recurrence != domain.RecurrenceNone {
		t.Fatalf("defaults not applied: %+v", m)
	}

	got, err := GetMessage(db, m.ID, "u1")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Content != "oi" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if _, err := GetMessage(db, m.ID, "someone-else"); err == nil {
		t.Fatalf("owner scoping violated")
	}
}

func TestListDueMessages(t *testing.T) {
	db := newRepoDB(t)
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	due1 := seedScheduled(t, db, "u1", now.Add(-time.Minute))
	due2 := seedScheduled(t, db, "u2", now.Add(-time.Hour))
	seedScheduled(t, db, "u1", now.Add(time.Hour)) // future, not due

	// sent messages are never due again
	sent := seedScheduled(t, db, "u1", now.Add(-time.Minute))
	if ok, err := ClaimForDispatch(db, sent.ID); err != nil || !ok {
		t.Fatalf("claim: %v %v", ok, err)
	}
	if ok, err := MarkSent(db, sent.ID, "EXT1", now); err != nil || !ok {
		t.Fatalf("mark sent: %v %v", ok, err)
	}

	got, err := ListDueMessages(db, now)
	if err != nil {
		t.Fatalf("ListDueMessages: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("due count = %d, want 2", len(got))
	}
	ids := map[string]bool{got[0].ID: true, got[1].ID: true}
	if !ids[due1.ID] || !ids[due2.ID] {
		t.Fatalf("wrong due set: %+v", got)
	}
}

func TestClaimForDispatch_SingleWinner(t *testing.T) {
	db := newRepoDB(t)
	m := seedScheduled(t, db, "u1", time.Now().Add(-time.Minute))

	ok, err := ClaimForDispatch(db, m.ID)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = ClaimForDispatch(db, m.ID)
	if err != nil {
		t.Fatalf("second claim err: %v", err)
	}
	if ok {
		t.Fatalf("second claim must lose")
	}

	// release puts it back
	if err := ReleaseClaim(db, m.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, _ := GetMessage(db, m.ID, "u1")
	if got.Status != domain.StatusScheduled {
		t.Fatalf("status after release = %s", got.Status)
	}
}

func TestReclaimStaleDispatching(t *testing.T) {
	db := newRepoDB(t)
	now := time.Now().UTC()

	// stale: claimed long ago, its dispatcher never wrote an outcome
	stale := seedScheduled(t, db, "u1", now.Add(-time.Hour))
	if ok, err := ClaimForDispatch(db, stale.ID); err != nil || !ok {
		t.Fatalf("claim: %v %v", ok, err)
	}
	backdate := now.Add(-10 * time.Minute)
	if err := db.Model(&domain.Message{}).Where("id = ?", stale.ID).
		UpdateColumn("updated_at", backdate).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	// fresh: claimed just now, presumably mid-send
	fresh := seedScheduled(t, db, "u1", now.Add(-time.Hour))
	if ok, err := ClaimForDispatch(db, fresh.ID); err != nil || !ok {
		t.Fatalf("claim fresh: %v %v", ok, err)
	}

	n, err := ReclaimStaleDispatching(db, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if n != 1 {
		t.Fatalf("reclaimed = %d, want 1", n)
	}

	gotStale, _ := GetMessage(db, stale.ID, "u1")
	if gotStale.Status != domain.StatusScheduled {
		t.Fatalf("stale claim status = %s, want scheduled", gotStale.Status)
	}
	gotFresh, _ := GetMessage(db, fresh.ID, "u1")
	if gotFresh.Status != domain.StatusDispatching {
		t.Fatalf("fresh claim status = %s, must stay dispatching", gotFresh.Status)
	}

	// reclaimed rows are due again
	due, err := ListDueMessages(db, now)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].ID != stale.ID {
		t.Fatalf("due set = %+v, want the reclaimed row", due)
	}
}

func TestClaimForDispatch_Concurrent(t *testing.T) {
	db := newRepoDB(t)
	m := seedScheduled(t, db, "u1", time.Now().Add(-time.Minute))

	const attempts = 8
	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ClaimForDispatch(db, m.ID)
			if err != nil {
				return // busy sqlite is acceptable here; a lost claim is not a win
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("claim winners = %d, want exactly 1", wins)
	}
}

func TestMarkSent_SetsExternalIDAndTimestamp(t *testing.T) {
	db := newRepoDB(t)
	m := seedScheduled(t, db, "u1", time.Now().Add(-time.Minute))
	at := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	if ok, _ := MarkSent(db, m.ID, "EXT9", at); ok {
		t.Fatalf("MarkSent without claim must not apply")
	}
	if ok, _ := ClaimForDispatch(db, m.ID); !ok {
		t.Fatalf("claim failed")
	}
	ok, err := MarkSent(db, m.ID, "EXT9", at)
	if err != nil || !ok {
		t.Fatalf("MarkSent: ok=%v err=%v", ok, err)
	}

	got, _ := GetMessage(db, m.ID, "u1")
	if got.Status != domain.StatusSent || got.SentAt == nil || !got.SentAt.Equal(at) {
		t.Fatalf("sent state wrong: %+v", got)
	}
	if got.ExternalID == nil || *got.ExternalID != "EXT9" {
		t.Fatalf("external id not stored: %+v", got.ExternalID)
	}
}

func TestMarkSent_EmptyExternalIDStaysNull(t *testing.T) {
	db := newRepoDB(t)
	m := seedScheduled(t, db, "u1", time.Now().Add(-time.Minute))
	ClaimForDispatch(db, m.ID)

	if ok, err := MarkSent(db, m.ID, "", time.Now().UTC()); err != nil || !ok {
		t.Fatalf("MarkSent: %v %v", ok, err)
	}
	got, _ := GetMessage(db, m.ID, "u1")
	if got.ExternalID != nil {
		t.Fatalf("external id should stay NULL, got %q", *got.ExternalID)
	}
}

func TestMarkFailed_OnlyFromPreSent(t *testing.T) {
	db := newRepoDB(t)
	m := seedScheduled(t, db, "u1", time.Now().Add(-time.Minute))

	ok, err := MarkFailed(db, m.ID)
	if err != nil || !ok {
		t.Fatalf("MarkFailed from scheduled: ok=%v err=%v", ok, err)
	}

	// a sent message must never fall back to failed
	m2 := seedScheduled(t, db, "u1", time.Now().Add(-time.Minute))
	ClaimForDispatch(db, m2.ID)
	MarkSent(db, m2.ID, "EXT2", time.Now().UTC())
	ok, err = MarkFailed(db, m2.ID)
	if err != nil {
		t.Fatalf("MarkFailed err: %v", err)
	}
	if ok {
		t.Fatalf("MarkFailed clobbered a sent message")
	}
	got, _ := GetMessage(db, m2.ID, "u1")
	if got.Status != domain.StatusSent {
		t.Fatalf("status = %s, want sent", got.Status)
	}
}

func TestAdvanceDelivery_ForwardOnlyAndIdempotent(t *testing.T) {
	db := newRepoDB(t)
	m := seedScheduled(t, db, "u1", time.Now().Add(-time.Minute))
	ClaimForDispatch(db, m.ID)
	sentAt := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	MarkSent(db, m.ID, "ABC123", sentAt)

	at := sentAt.Add(time.Minute)
	ok, err := AdvanceDelivery(db, "ABC123", domain.StatusDelivered, at)
	if err != nil || !ok {
		t.Fatalf("advance delivered: ok=%v err=%v", ok, err)
	}
	got, _ := GetMessage(db, m.ID, "u1")
	if got.Status != domain.StatusDelivered || got.DeliveredAt == nil {
		t.Fatalf("delivered state wrong: %+v", got)
	}

	// identical event again: no-op, no error
	ok, err = AdvanceDelivery(db, "ABC123", domain.StatusDelivered, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("repeat advance err: %v", err)
	}
	if ok {
		t.Fatalf("repeat advance must be a no-op")
	}
	again, _ := GetMessage(db, m.ID, "u1")
	if !again.DeliveredAt.Equal(*got.DeliveredAt) {
		t.Fatalf("deliveredAt changed on repeat")
	}

	// backward transition: sent after delivered is a no-op
	if ok, _ := AdvanceDelivery(db, "ABC123", domain.StatusSent, at); ok {
		t.Fatalf("backward transition applied")
	}

	// forward continues
	if ok, _ := AdvanceDelivery(db, "ABC123", domain.StatusRead, at.Add(time.Minute)); !ok {
		t.Fatalf("read transition should apply")
	}
	final, _ := GetMessage(db, m.ID, "u1")
	if final.Status != domain.StatusRead || final.ReadAt == nil {
		t.Fatalf("read state wrong: %+v", final)
	}
}

func TestAdvanceDelivery_SkipsReadBackfillsDelivered(t *testing.T) {
	db := newRepoDB(t)
	m := seedScheduled(t, db, "u1", time.Now().Add(-time.Minute))
	ClaimForDispatch(db, m.ID)
	MarkSent(db, m.ID, "SKIP1", time.Now().UTC())

	at := time.Now().UTC().Add(time.Minute)
	if ok, _ := AdvanceDelivery(db, "SKIP1", domain.StatusRead, at); !ok {
		t.Fatalf("read straight from sent should apply")
	}
	got, _ := GetMessage(db, m.ID, "u1")
	if got.DeliveredAt == nil || got.ReadAt == nil {
		t.Fatalf("timestamps not backfilled: %+v", got)
	}
}

func TestAdvanceDelivery_UnknownExternalIDOrCode(t *testing.T) {
	db := newRepoDB(t)

	if ok, err := AdvanceDelivery(db, "NOPE", domain.StatusDelivered, time.Now()); ok || err != nil {
		t.Fatalf("unknown external id: ok=%v err=%v", ok, err)
	}
	if ok, err := AdvanceDelivery(db, "NOPE", "bogus-status", time.Now()); ok || err != nil {
		t.Fatalf("unknown target: ok=%v err=%v", ok, err)
	}
}

func TestFindByExternalID(t *testing.T) {
	db := newRepoDB(t)
	m := seedScheduled(t, db, "u1", time.Now().Add(-time.Minute))
	ClaimForDispatch(db, m.ID)
	MarkSent(db, m.ID, "FINDME", time.Now().UTC())

	got, err := FindByExternalID(db, "FINDME")
	if err != nil || got.ID != m.ID {
		t.Fatalf("FindByExternalID: %+v %v", got, err)
	}
	if _, err := FindByExternalID(db, "MISSING"); err == nil {
		t.Fatalf("expected error for missing external id")
	}
}

func TestDeleteMessage_OwnerScoped(t *testing.T) {
	db := newRepoDB(t)
	m := seedScheduled(t, db, "u1", time.Now())

	if ok, _ := DeleteMessage(db, m.ID, "intruder"); ok {
		t.Fatalf("cross-owner delete succeeded")
	}
	if ok, err := DeleteMessage(db, m.ID, "u1"); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, err := GetMessage(db, m.ID, "u1"); err == nil {
		t.Fatalf("message still present after delete")
	}
}

func TestListMessagesPage(t *testing.T) {
	db := newRepoDB(t)
	for i := 0; i < 5; i++ {
		seedScheduled(t, db, "u1", time.Now().Add(time.Duration(i)*time.Minute))
	}
	seedScheduled(t, db, "u2", time.Now())

	total, err := CountMessages(db, "u1")
	if err != nil || total != 5 {
		t.Fatalf("count = %d err=%v", total, err)
	}
	page, err := ListMessagesPage(db, "u1", 0, 3)
	if err != nil || len(page) != 3 {
		t.Fatalf("page = %d err=%v", len(page), err)
	}
	rest, _ := ListMessagesPage(db, "u1", 3, 3)
	if len(rest) != 2 {
		t.Fatalf("rest = %d, want 2", len(rest))
	}
}
