package services

import (
	"context"
	"errors"
	"testing"

	"github.com/zapvite/go-wa-backend/internal/repo"
)

func TestSessionStatus_LiveProbeRefreshesMirror(t *testing.T) {
	db := newSvcDB(t)
	tp := newFakeTransport("CONNECTED")
	svc := &SessionService{DB: db, Transport: tp, SessionPrefix: "user"}

	got, err := svc.Status(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got.Status != "CONNECTED" || got.SessionID != "user_u1" {
		t.Fatalf("mirror wrong: %+v", got)
	}
}

func TestSessionStatus_ServesStaleMirrorWhenGatewayDown(t *testing.T) {
	db := newSvcDB(t)
	if err := repo.UpsertSession(db, "u1", "user_u1", "CONNECTED", "5511987654321", "Maria"); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}
	tp := newFakeTransport("")
	tp.statusErr = errors.New("gateway down")
	svc := &SessionService{DB: db, Transport: tp, SessionPrefix: "user"}

	got, err := svc.Status(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if got.Status != "CONNECTED" || got.Phone != "5511987654321" {
		t.Fatalf("stale mirror not served: %+v", got)
	}
}

func TestSessionStatus_NothingKnown(t *testing.T) {
	db := newSvcDB(t)
	tp := newFakeTransport("")
	tp.statusErr = errors.New("gateway down")
	svc := &SessionService{DB: db, Transport: tp, SessionPrefix: "user"}

	if _, err := svc.Status(context.Background(), "ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}
