package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zapvite/go-wa-backend/internal/domain"
	"github.com/zapvite/go-wa-backend/internal/repo"
)

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
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
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func mustContact(t *testing.T, db *gorm.DB, userID, name, phone string) *domain.Contact {
	t.Helper()
	c := &domain.Contact{UserID: userID, Name: name, Phone: phone}
	if err := repo.CreateContact(db, c); err != nil {
		t.Fatalf("seed contact: %v", err)
	}
	return c
}

func mustScheduled(t *testing.T, db *gorm.DB, userID, contactID, content string, at time.Time) *domain.Message {
	t.Helper()
	m := &domain.Message{
		UserID:      userID,
		ContactID:   contactID,
		Content:     content,
		Status:      domain.StatusScheduled,
		ScheduledAt: &at,
	}
	if err := repo.CreateMessage(db, m); err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return m
}

type sendCall struct {
	Session string
	Phone   string
	Content string
}

// fakeTransport is an in-memory gateway double.
type fakeTransport struct {
	mu sync.Mutex

	status    string
	statusErr error

	sendErr error
	sends   []sendCall
	nextSeq int
	probes  int
}

func newFakeTransport(status string) *fakeTransport {
	return &fakeTransport{status: status}
}

func (f *fakeTransport) SendText(_ context.Context, session, phone, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.nextSeq++
	f.sends = append(f.sends, sendCall{Session: session, Phone: phone, Content: content})
	return fmt.Sprintf("EXT%d", f.nextSeq), nil
}

func (f *fakeTransport) SessionStatus(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.status, f.statusErr
}

func (f *fakeTransport) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeTransport) lastSend() sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sends) == 0 {
		return sendCall{}
	}
	return f.sends[len(f.sends)-1]
}
