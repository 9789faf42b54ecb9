package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/zapvite/go-wa-backend/internal/domain"
	"github.com/zapvite/go-wa-backend/internal/events"
	"github.com/zapvite/go-wa-backend/internal/reply"
	"github.com/zapvite/go-wa-backend/internal/repo"
	"gorm.io/gorm"
)

func newWebhookSvc(db *gorm.DB) *WebhookService {
	return &WebhookService{
		DB:                 db,
		Ring:               events.NewRing(16),
		Classifier:         reply.NewClassifier([]string{"sim", "confirmo", "ok"}, []string{"nao", "cancelar"}),
		SessionPrefix:      "user",
		DefaultCountryCode: "55",
	}
}

func sentMessage(t *testing.T, db *gorm.DB, userID, externalID string) *domain.Message {
	t.Helper()
	m := mustScheduled(t, db, userID, "c1", "oi", time.Now().UTC().Add(-time.Minute))
	if ok, err := repo.ClaimForDispatch(db, m.ID); err != nil || !ok {
		t.Fatalf("claim: %v %v", ok, err)
	}
	if ok, err := repo.MarkSent(db, m.ID, externalID, time.Now().UTC()); err != nil || !ok {
		t.Fatalf("mark sent: %v %v", ok, err)
	}
	return m
}

func pendingConfirmation(t *testing.T, db *gorm.DB, userID, name, phone string) *domain.Confirmation {
	t.Helper()
	c := &domain.Confirmation{
		UserID:         userID,
		ContactName:    name,
		ContactPhone:   phone,
		MessageContent: "confirma?",
	}
	if err := repo.CreateConfirmation(db, c); err != nil {
		t.Fatalf("seed confirmation: %v", err)
	}
	return c
}

func ingest(svc *WebhookService, event, session, payload string) {
	svc.Ingest(context.Background(), InboundEvent{
		Event:   event,
		Session: session,
		Payload: json.RawMessage(payload),
	})
}

func TestIngest_RecordsEventInRing(t *testing.T) {
	db := newSvcDB(t)
	svc := newWebhookSvc(db)

	ingest(svc, "onack", "user_u1", `{"id":"X","ack":1}`)
	ingest(svc, "qrcode", "user_u1", `{}`)

	recent := svc.Ring.Recent(10)
	if len(recent) != 2 {
		t.Fatalf("ring events = %d, want 2", len(recent))
	}
	// normalized kind is stored, newest first
	if recent[0].Event != "qrcode" || recent[1].Event != "ack" {
		t.Fatalf("ring order/kinds wrong: %+v", recent)
	}
}

func TestIngest_AckAdvancesLifecycle(t *testing.T) {
	db := newSvcDB(t)
	svc := newWebhookSvc(db)
	m := sentMessage(t, db, "u1", "ABC123")

	ingest(svc, "onack", "user_u1", `{"id":"true_5511999999999@c.us_ABC123","ack":2}`)

	got, _ := repo.GetMessage(db, m.ID, "u1")
	if got.Status != domain.StatusDelivered || got.DeliveredAt == nil {
		t.Fatalf("not delivered: %+v", got)
	}
	firstAt := *got.DeliveredAt

	// the exact same event again is a no-op
	ingest(svc, "onack", "user_u1", `{"id":"true_5511999999999@c.us_ABC123","ack":2}`)
	again, _ := repo.GetMessage(db, m.ID, "u1")
	if again.Status != domain.StatusDelivered || !again.DeliveredAt.Equal(firstAt) {
		t.Fatalf("repeat ack mutated state: %+v", again)
	}

	// read advances further
	ingest(svc, "ack", "user_u1", `{"id":"true_5511999999999@c.us_ABC123","ack":3}`)
	final, _ := repo.GetMessage(db, m.ID, "u1")
	if final.Status != domain.StatusRead || final.ReadAt == nil {
		t.Fatalf("not read: %+v", final)
	}

	// a late delivered ack never regresses a read message
	ingest(svc, "ack", "user_u1", `{"id":"true_5511999999999@c.us_ABC123","ack":2}`)
	still, _ := repo.GetMessage(db, m.ID, "u1")
	if still.Status != domain.StatusRead {
		t.Fatalf("regressed to %s", still.Status)
	}
}

func TestIngest_AckWithSerializedObjectID(t *testing.T) {
	db := newSvcDB(t)
	svc := newWebhookSvc(db)
	m := sentMessage(t, db, "u1", "OBJ42")

	ingest(svc, "onack", "user_u1", `{"id":{"_serialized":"false_551188887777@c.us_OBJ42"},"ack":3}`)

	got, _ := repo.GetMessage(db, m.ID, "u1")
	if got.Status != domain.StatusRead {
		t.Fatalf("status = %s, want read", got.Status)
	}
	if got.DeliveredAt == nil || got.ReadAt == nil {
		t.Fatalf("skipped timestamps not backfilled: %+v", got)
	}
}

func TestIngest_AckUnknownReferenceDropped(t *testing.T) {
	db := newSvcDB(t)
	svc := newWebhookSvc(db)

	// must not panic or error out
	ingest(svc, "ack", "user_u1", `{"id":"true_x_NOPE","ack":2}`)
	ingest(svc, "ack", "user_u1", `{"id":"true_x_REF","ack":99}`)
	ingest(svc, "ack", "user_u1", `not json`)
}

func TestIngest_StatusRefreshesMirror(t *testing.T) {
	db := newSvcDB(t)
	svc := newWebhookSvc(db)

	ingest(svc, "status", "user_u7", `{"status":"CONNECTED","phone":"5511987654321","profileName":"Maria"}`)

	got, err := repo.GetSessionByUser(db, "u7")
	if err != nil {
		t.Fatalf("mirror missing: %v", err)
	}
	if got.Status != "CONNECTED" || got.Phone != "5511987654321" || got.ProfileName != "Maria" {
		t.Fatalf("mirror wrong: %+v", got)
	}

	// session outside the naming convention cannot be attributed
	ingest(svc, "status", "weird-session", `{"status":"CONNECTED"}`)
	var count int64
	db.Model(&domain.WhatsAppSession{}).Count(&count)
	if count != 1 {
		t.Fatalf("unattributable status created a row")
	}
}

func TestIngest_MessageResolvesSinglePending(t *testing.T) {
	db := newSvcDB(t)
	svc := newWebhookSvc(db)
	c := pendingConfirmation(t, db, "u1", "Maria", "(11) 98765-4321")

	// single pending: resolved even though the sender number matches nothing
	ingest(svc, "onmessage", "user_u1", `{"body":"Sim, estarei la!","from":"9999@c.us","fromMe":false}`)

	got, _ := repo.GetConfirmation(db, c.ID, "u1")
	if got.Status != domain.ConfirmationConfirmed {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}
	if got.Response != "Sim, estarei la!" || got.RespondedAt == nil {
		t.Fatalf("response not recorded: %+v", got)
	}
}

func TestIngest_MessageNegativeVerdict(t *testing.T) {
	db := newSvcDB(t)
	svc := newWebhookSvc(db)
	c := pendingConfirmation(t, db, "u1", "Maria", "5511987654321")

	ingest(svc, "message", "user_u1", `{"body":"NÃO vou poder","from":"5511987654321@c.us","fromMe":false}`)

	got, _ := repo.GetConfirmation(db, c.ID, "u1")
	if got.Status != domain.ConfirmationDenied {
		t.Fatalf("status = %s, want denied", got.Status)
	}
}

func TestIngest_MessageMatchesSenderAmongMany(t *testing.T) {
	db := newSvcDB(t)
	svc := newWebhookSvc(db)
	other := pendingConfirmation(t, db, "u1", "Ana", "5511911112222")
	target := pendingConfirmation(t, db, "u1", "Maria", "(11) 98765-4321")

	// sender arrives with routing suffix; matching is on normalized digits
	ingest(svc, "message", "user_u1", `{"body":"confirmo","from":"5511987654321@c.us","fromMe":false}`)

	got, _ := repo.GetConfirmation(db, target.ID, "u1")
	if got.Status != domain.ConfirmationConfirmed {
		t.Fatalf("target status = %s", got.Status)
	}
	untouched, _ := repo.GetConfirmation(db, other.ID, "u1")
	if untouched.Status != domain.ConfirmationPending {
		t.Fatalf("wrong confirmation resolved: %+v", untouched)
	}
}

func TestIngest_MessageSenderPreference(t *testing.T) {
	db := newSvcDB(t)
	svc := newWebhookSvc(db)
	pendingConfirmation(t, db, "u1", "Ana", "5511911112222")
	target := pendingConfirmation(t, db, "u1", "Maria", "5511987654321")

	// realNumber wins over the anonymized from field
	payload := fmt.Sprintf(`{"body":"sim","from":"%s","realNumber":"%s","fromMe":false}`,
		"anon-123@lid", "11987654321")
	ingest(svc, "message", "user_u1", payload)

	got, _ := repo.GetConfirmation(db, target.ID, "u1")
	if got.Status != domain.ConfirmationConfirmed {
		t.Fatalf("realNumber not preferred: %+v", got)
	}
}

func TestIngest_MessageNoKeywordLeavesPending(t *testing.T) {
	db := newSvcDB(t)
	svc := newWebhookSvc(db)
	c := pendingConfirmation(t, db, "u1", "Maria", "5511987654321")

	ingest(svc, "message", "user_u1", `{"body":"quem fala?","from":"5511987654321@c.us","fromMe":false}`)

	got, _ := repo.GetConfirmation(db, c.ID, "u1")
	if got.Status != domain.ConfirmationPending {
		t.Fatalf("resolved without a keyword: %+v", got)
	}
}

func TestIngest_SelfEchoWithAckRoutesToDelivery(t *testing.T) {
	db := newSvcDB(t)
	svc := newWebhookSvc(db)
	m := sentMessage(t, db, "u1", "ECHO7")
	c := pendingConfirmation(t, db, "u1", "Maria", "5511987654321")

	// fromMe message carrying an ack code must never touch confirmations
	ingest(svc, "message", "user_u1", `{"body":"sim","fromMe":true,"ack":2,"id":"true_x_ECHO7"}`)

	msg, _ := repo.GetMessage(db, m.ID, "u1")
	if msg.Status != domain.StatusDelivered {
		t.Fatalf("self echo ack not applied: %s", msg.Status)
	}
	conf, _ := repo.GetConfirmation(db, c.ID, "u1")
	if conf.Status != domain.ConfirmationPending {
		t.Fatalf("self echo resolved a confirmation")
	}
}

func TestIngest_SecondReplyDoesNotFlipVerdict(t *testing.T) {
	db := newSvcDB(t)
	svc := newWebhookSvc(db)
	c := pendingConfirmation(t, db, "u1", "Maria", "5511987654321")

	ingest(svc, "message", "user_u1", `{"body":"sim","from":"5511987654321@c.us","fromMe":false}`)
	ingest(svc, "message", "user_u1", `{"body":"nao, cancela","from":"5511987654321@c.us","fromMe":false}`)

	got, _ := repo.GetConfirmation(db, c.ID, "u1")
	if got.Status != domain.ConfirmationConfirmed || got.Response != "sim" {
		t.Fatalf("verdict flipped: %+v", got)
	}
}

func TestNormalizeEventKind(t *testing.T) {
	cases := map[string]string{
		"onack":       "ack",
		"ACK":         "ack",
		"onMessage":   "message",
		"status-find": "status",
		"onstatus":    "status",
		"qrcode":      "qrcode",
	}
	for in, want := range cases {
		if got := normalizeEventKind(in); got != want {
			t.Fatalf("normalizeEventKind(%q) = %q, want %q", in, got, want)
		}
	}
}
