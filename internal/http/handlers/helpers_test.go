package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/zapvite/go-wa-backend/internal/domain"
	"github.com/zapvite/go-wa-backend/internal/events"
	"github.com/zapvite/go-wa-backend/internal/services"
)

// ---------- fakes for the narrow service interfaces ----------

type fakeMessageSvc struct {
	sendIn   services.SendInput
	sendOut  []domain.Message
	sendErr  error
	getOut   *domain.Message
	getErr   error
	listOut  []domain.Message
	listTot  int64
	listErr  error
	delErr   error
	lastUser string
}

func (f *fakeMessageSvc) Send(_ context.Context, userID string, in services.SendInput) ([]domain.Message, error) {
	f.lastUser = userID
	f.sendIn = in
	return f.sendOut, f.sendErr
}

func (f *fakeMessageSvc) Get(_ context.Context, userID, id string) (*domain.Message, error) {
	f.lastUser = userID
	return f.getOut, f.getErr
}

func (f *fakeMessageSvc) ListPage(_ context.Context, userID string, page, pageSize int) ([]domain.Message, int64, error) {
	f.lastUser = userID
	return f.listOut, f.listTot, f.listErr
}

func (f *fakeMessageSvc) Delete(_ context.Context, userID, id string) error {
	f.lastUser = userID
	return f.delErr
}

type fakeSenderSvc struct {
	err    error
	lastID string
}

func (f *fakeSenderSvc) SendNow(_ context.Context, userID, messageID string) error {
	f.lastID = messageID
	return f.err
}

type fakeContactSvc struct {
	createOut *domain.Contact
	createErr error
	getOut    *domain.Contact
	getErr    error
	listOut   []domain.Contact
	listErr   error
	delErr    error
}

func (f *fakeContactSvc) Create(_ context.Context, userID, name, phone string) (*domain.Contact, error) {
	return f.createOut, f.createErr
}

func (f *fakeContactSvc) Get(_ context.Context, userID, id string) (*domain.Contact, error) {
	return f.getOut, f.getErr
}

func (f *fakeContactSvc) List(_ context.Context, userID string) ([]domain.Contact, error) {
	return f.listOut, f.listErr
}

func (f *fakeContactSvc) Delete(_ context.Context, userID, id string) error {
	return f.delErr
}

type fakeConfSvc struct {
	createIn   services.ConfirmationInput
	createOut  *domain.Confirmation
	createErr  error
	getOut     *domain.Confirmation
	getErr     error
	listOut    []domain.Confirmation
	listTot    int64
	listErr    error
	pendingOut []domain.Confirmation
	pendingErr error
}

func (f *fakeConfSvc) Create(_ context.Context, userID string, in services.ConfirmationInput) (*domain.Confirmation, error) {
	f.createIn = in
	return f.createOut, f.createErr
}

func (f *fakeConfSvc) Get(_ context.Context, userID, id string) (*domain.Confirmation, error) {
	return f.getOut, f.getErr
}

func (f *fakeConfSvc) ListPage(_ context.Context, userID string, page, pageSize int) ([]domain.Confirmation, int64, error) {
	return f.listOut, f.listTot, f.listErr
}

func (f *fakeConfSvc) ListPending(_ context.Context, userID string) ([]domain.Confirmation, error) {
	return f.pendingOut, f.pendingErr
}

type fakeSessionSvc struct {
	out *domain.WhatsAppSession
	err error
}

func (f *fakeSessionSvc) Status(_ context.Context, userID string) (*domain.WhatsAppSession, error) {
	return f.out, f.err
}

type fakeWebhookSvc struct {
	events []services.InboundEvent
}

func (f *fakeWebhookSvc) Ingest(_ context.Context, ev services.InboundEvent) {
	f.events = append(f.events, ev)
}

type fakeSchedulerCtl struct{ running bool }

func (f *fakeSchedulerCtl) Start() bool {
	if f.running {
		return false
	}
	f.running = true
	return true
}

func (f *fakeSchedulerCtl) Stop() bool {
	if !f.running {
		return false
	}
	f.running = false
	return true
}

func (f *fakeSchedulerCtl) IsRunning() bool { return f.running }

// ---------- wiring ----------

// testEnv groups the fakes behind one Handlers instance with all routes
// mounted the way the router does.
type testEnv struct {
	msg     *fakeMessageSvc
	sender  *fakeSenderSvc
	contact *fakeContactSvc
	conf    *fakeConfSvc
	session *fakeSessionSvc
	webhook *fakeWebhookSvc
	sched   *fakeSchedulerCtl
	ring    *events.Ring
	router  *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		msg:     &fakeMessageSvc{},
		sender:  &fakeSenderSvc{},
		contact: &fakeContactSvc{},
		conf:    &fakeConfSvc{},
		session: &fakeSessionSvc{},
		webhook: &fakeWebhookSvc{},
		sched:   &fakeSchedulerCtl{},
		ring:    events.NewRing(16),
	}
	h := New(env.msg, env.sender, env.contact, env.conf, env.session, env.webhook, env.sched, env.ring)

	r := gin.New()
	r.POST("/messages", h.SendMessage)
	r.POST("/messages/bulk", h.SendBulkMessage)
	r.GET("/messages", h.ListMessages)
	r.GET("/messages/:id", h.GetMessage)
	r.DELETE("/messages/:id", h.DeleteMessage)
	r.POST("/messages/:id/send", h.SendMessageNow)
	r.POST("/contacts", h.CreateContact)
	r.GET("/contacts", h.ListContacts)
	r.GET("/contacts/:id", h.GetContact)
	r.DELETE("/contacts/:id", h.DeleteContact)
	r.POST("/confirmations", h.CreateConfirmation)
	r.GET("/confirmations", h.ListConfirmations)
	r.GET("/confirmations/pending", h.ListPendingConfirmations)
	r.GET("/confirmations/:id", h.GetConfirmation)
	r.GET("/sessions/status", h.SessionStatusHandler)
	r.POST("/scheduler/start", h.StartScheduler)
	r.POST("/scheduler/stop", h.StopScheduler)
	r.GET("/scheduler/status", h.SchedulerStatus)
	r.POST("/webhooks/whatsapp", h.ReceiveWebhook)
	r.GET("/webhooks/events", h.ListWebhookEvents)
	env.router = r
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-ID", "u1")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}
