package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/counseling-booking/internal/calendar"
	"github.com/Leganyst/counseling-booking/internal/messaging"
	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/payment"
	"github.com/Leganyst/counseling-booking/internal/repository"
	"github.com/Leganyst/counseling-booking/internal/service"
	"github.com/Leganyst/counseling-booking/internal/session"
)

var (
	testNow      = time.Date(2029, 12, 1, 12, 0, 0, 0, time.UTC)
	testProvider = uuid.MustParse("8f6a1c1e-3d5b-4f0a-9a6e-2b7c4d1e0f11")
	testClient   = uuid.MustParse("1b2c3d4e-5f60-4711-8a9b-0c1d2e3f4a5b")
)

// валидные ответы на все шаги всех анкет
var answers = map[string]string{
	fieldName:        "Anna Petrova",
	fieldDateOfBirth: "1995-04-12",
	fieldPhone:       "+7 999 123-45-67",
	fieldProvider:    "1",
	fieldDateTime:    "2030-01-07 10:00",
	fieldTopic:       "Work stress",
	fieldMessage:     "I cannot open my booking link",
	fieldArea:        "Go",
	fieldLevel:       "beginner",
	fieldGoals:       "Learn to build services",
	fieldTitle:       "Go in Action",
	fieldQuantity:    "2",
	fieldAddress:     "Moscow, Tverskaya 1",
	fieldCode:        "ab12cd",
	fieldRating:      "5",
	fieldComment:     "-",
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []messaging.Outgoing
}

func (m *fakeMessenger) Send(_ context.Context, msg messaging.Outgoing) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("m%d", len(m.sent)), nil
}

type fakeProviders struct{}

func (fakeProviders) ListProviders(context.Context) ([]model.Provider, error) {
	return []model.Provider{{ID: testProvider, DisplayName: "Dr. Ivanova"}}, nil
}

type fakeClients struct {
	ensured []repository.UserContacts
	missing bool
}

func (c *fakeClients) EnsureClient(_ context.Context, _ string, contacts repository.UserContacts) (*model.Client, error) {
	c.ensured = append(c.ensured, contacts)
	return &model.Client{ID: testClient}, nil
}

func (c *fakeClients) FindClient(context.Context, string) (*model.Client, error) {
	if c.missing {
		return nil, service.ErrNotFound
	}
	return &model.Client{ID: testClient}, nil
}

type fakeReserver struct {
	requests []service.ReserveRequest
	err      error
}

func (r *fakeReserver) Reserve(_ context.Context, req service.ReserveRequest) (*model.Appointment, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	status := model.AppointmentStatusPending
	if req.AmountCents > 0 {
		status = model.AppointmentStatusPendingPayment
	}
	return &model.Appointment{
		Code:        "K7Q2M9",
		ProviderID:  testProvider,
		StartsAt:    req.Start,
		EndsAt:      req.End,
		Status:      status,
		AmountCents: req.AmountCents,
	}, nil
}

type fakeIntake struct {
	support    []*model.SupportRequest
	mentorship []*model.MentorshipRequest
	orders     []*model.BookOrder
	reviews    []*model.Review
	checkErr   error
}

func (f *fakeIntake) SubmitSupport(_ context.Context, req *model.SupportRequest) error {
	f.support = append(f.support, req)
	return nil
}

func (f *fakeIntake) SubmitMentorship(_ context.Context, req *model.MentorshipRequest) error {
	f.mentorship = append(f.mentorship, req)
	return nil
}

func (f *fakeIntake) PlaceBookOrder(_ context.Context, order *model.BookOrder, unitPriceCents int64) error {
	order.ID = uuid.New()
	order.TotalCents = unitPriceCents * int64(order.Quantity)
	order.PaymentStatus = model.PaymentStatusNotRequired
	if order.TotalCents > 0 {
		order.PaymentStatus = model.PaymentStatusPending
	}
	f.orders = append(f.orders, order)
	return nil
}

func (f *fakeIntake) CheckReviewable(context.Context, *model.Client, string) (*model.Appointment, error) {
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	return &model.Appointment{Status: model.AppointmentStatusCompleted}, nil
}

func (f *fakeIntake) SubmitReview(_ context.Context, client *model.Client, code string, rating int, comment string) (*model.Review, error) {
	r := &model.Review{ClientID: client.ID, Rating: rating, Comment: comment}
	f.reviews = append(f.reviews, r)
	return r, nil
}

type fakeGateway struct {
	calls []string
}

func (g *fakeGateway) Initiate(_ context.Context, reference string, amountCents int64, phone string) (payment.State, error) {
	g.calls = append(g.calls, fmt.Sprintf("%s/%d/%s", reference, amountCents, phone))
	return payment.StatePending, nil
}

type harness struct {
	engine    *Engine
	store     *session.MemoryStore
	messenger *fakeMessenger
	reserver  *fakeReserver
	clients   *fakeClients
	intake    *fakeIntake
	payments  *fakeGateway
}

func newHarness(t *testing.T, fee, bookPrice int64) *harness {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	hours, err := calendar.NewWorkingHours(loc, 8, 17, []time.Weekday{
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
	})
	if err != nil {
		t.Fatalf("working hours: %v", err)
	}
	h := &harness{
		store:     session.NewMemoryStore(0),
		messenger: &fakeMessenger{},
		reserver:  &fakeReserver{},
		clients:   &fakeClients{},
		intake:    &fakeIntake{},
		payments:  &fakeGateway{},
	}
	forms := Forms(Deps{
		Hours:           hours,
		Duration:        50 * time.Minute,
		SessionFeeCents: fee,
		BookPriceCents:  bookPrice,
		Reserver:        h.reserver,
		Providers:       fakeProviders{},
		Clients:         h.clients,
		Intake:          h.intake,
		Payments:        h.payments,
		Now:             func() time.Time { return testNow },
	})
	h.engine = NewEngine(h.store, h.messenger, forms, zap.NewNop())
	return h
}

// handle прогоняет один шаг через чистый Handle.
func (h *harness) handle(t *testing.T, sess *session.Session, text string) (*session.Session, []messaging.Outgoing) {
	t.Helper()
	next, out, err := h.engine.Handle(context.Background(), sess, messaging.Inbound{UserID: "u1", Text: text})
	if err != nil {
		t.Fatalf("handle %q: %v", text, err)
	}
	return next, out
}

// fill начинает анкету и отвечает на первые n шагов.
func (h *harness) fill(t *testing.T, flow session.FlowType, trigger string, n int) *session.Session {
	t.Helper()
	sess, _ := h.handle(t, nil, trigger)
	if sess == nil || sess.Flow != flow {
		t.Fatalf("trigger %s: unexpected session %+v", trigger, sess)
	}
	form := h.engine.forms[flow]
	for i := 0; i < n; i++ {
		field := form.Steps[i].Field
		if sess.Step != field {
			t.Fatalf("expected step %s, got %s", field, sess.Step)
		}
		next, out := h.handle(t, sess, answers[field])
		if next == nil {
			t.Fatalf("session ended at %s: %+v", field, out)
		}
		if next.Step == field {
			t.Fatalf("step %s did not advance: %s", field, out[0].Text)
		}
		sess = next
	}
	return sess
}

func lastText(out []messaging.Outgoing) string {
	if len(out) == 0 {
		return ""
	}
	return out[len(out)-1].Text
}

func TestEngine_BookingHappyPath(t *testing.T) {
	h := newHarness(t, 0, 0)
	sess := h.fill(t, session.FlowBooking, "/book", 6)
	if sess.Step != stepConfirm {
		t.Fatalf("expected confirm step, got %s", sess.Step)
	}
	if sess.Fields[fieldPhone] != "+79991234567" || sess.Fields[fieldProvider] != testProvider.String() {
		t.Fatalf("fields not normalized: %+v", sess.Fields)
	}

	next, out := h.handle(t, sess, "Yes")
	if next != nil {
		t.Fatalf("session must end after booking, got %+v", next)
	}
	if len(h.reserver.requests) != 1 {
		t.Fatalf("expected one reserve call, got %d", len(h.reserver.requests))
	}
	req := h.reserver.requests[0]
	wantStart := time.Date(2030, 1, 7, 7, 0, 0, 0, time.UTC) // 10:00 MSK
	if !req.Start.Equal(wantStart) || !req.End.Equal(wantStart.Add(50*time.Minute)) {
		t.Fatalf("unexpected range %v - %v", req.Start, req.End)
	}
	if req.ClientID == nil || *req.ClientID != testClient || req.ProviderID != testProvider.String() {
		t.Fatalf("unexpected request %+v", req)
	}
	if len(h.clients.ensured) != 1 || h.clients.ensured[0].DateOfBirth == nil {
		t.Fatalf("client contacts not passed: %+v", h.clients.ensured)
	}
	if !strings.Contains(lastText(out), "K7Q2M9") {
		t.Fatalf("confirmation must contain the code: %q", lastText(out))
	}
	if len(h.payments.calls) != 0 {
		t.Fatalf("free session must not start a payment")
	}
}

func TestEngine_BookingWithFeeStartsPayment(t *testing.T) {
	h := newHarness(t, 250000, 0)
	sess := h.fill(t, session.FlowBooking, "/book", 6)
	_, out := h.handle(t, sess, "confirm")
	if len(out) != 2 {
		t.Fatalf("expected confirmation and payment messages, got %d", len(out))
	}
	if len(h.payments.calls) != 1 || h.payments.calls[0] != "K7Q2M9/250000/+79991234567" {
		t.Fatalf("unexpected payment calls %v", h.payments.calls)
	}
}

func TestEngine_InvalidDateOfBirthRepeatsStep(t *testing.T) {
	h := newHarness(t, 0, 0)
	sess := h.fill(t, session.FlowBooking, "/book", 1)

	next, out := h.handle(t, sess, "abc")
	if next.Step != fieldDateOfBirth {
		t.Fatalf("step must not advance, got %s", next.Step)
	}
	if _, ok := next.Fields[fieldDateOfBirth]; ok {
		t.Fatalf("invalid value must not be stored")
	}
	if !strings.Contains(out[0].Text, "YYYY-MM-DD") {
		t.Fatalf("reason missing: %q", out[0].Text)
	}

	next, _ = h.handle(t, next, "1995-04-12")
	if next.Step != fieldPhone || next.Fields[fieldDateOfBirth] != "1995-04-12" {
		t.Fatalf("unexpected session %+v", next)
	}
}

func TestEngine_DateTimeOutsideWorkingHours(t *testing.T) {
	h := newHarness(t, 0, 0)
	sess := h.fill(t, session.FlowBooking, "/book", 4)

	next, out := h.handle(t, sess, "2030-01-07 16:30")
	if next.Step != fieldDateTime {
		t.Fatalf("step must not advance, got %s", next.Step)
	}
	if !strings.Contains(out[0].Text, "17:00") {
		t.Fatalf("reason must mention working hours: %q", out[0].Text)
	}

	next, _ = h.handle(t, sess, "2029-11-05 10:00")
	if next.Step != fieldDateTime {
		t.Fatalf("past time must be rejected")
	}
}

func TestEngine_CancelAtEveryStep(t *testing.T) {
	flows := []struct {
		flow    session.FlowType
		trigger string
	}{
		{session.FlowBooking, "/book"},
		{session.FlowSupport, "/support"},
		{session.FlowMentorship, "/mentorship"},
		{session.FlowBookOrder, "/order"},
		{session.FlowReview, "/review"},
	}
	for _, f := range flows {
		h := newHarness(t, 0, 0)
		steps := len(h.engine.forms[f.flow].Steps)
		// шаг steps - подтверждение
		for n := 0; n <= steps; n++ {
			sess := h.fill(t, f.flow, f.trigger, n)
			for _, token := range []string{"cancel", "NO", "/cancel", "stop"} {
				next, out := h.handle(t, sess, token)
				if next != nil {
					t.Fatalf("%s step %d: %q must destroy the session", f.flow, n, token)
				}
				if lastText(out) != msgCancelled {
					t.Fatalf("%s step %d: unexpected reply %q", f.flow, n, lastText(out))
				}
			}
		}
		if len(h.reserver.requests)+len(h.intake.support)+len(h.intake.mentorship)+len(h.intake.orders)+len(h.intake.reviews) != 0 {
			t.Fatalf("%s: cancellation must not submit anything", f.flow)
		}
	}
}

func TestEngine_ReserveConflictReturnsToDateTime(t *testing.T) {
	h := newHarness(t, 0, 0)
	h.reserver.err = fmt.Errorf("reserve: %w", &service.ConflictError{Reason: "this time overlaps another appointment (10:00-10:50)"})
	sess := h.fill(t, session.FlowBooking, "/book", 6)

	next, out := h.handle(t, sess, "yes")
	if next == nil {
		t.Fatalf("conflict must keep the session")
	}
	if next.Step != fieldDateTime {
		t.Fatalf("expected datetime step, got %s", next.Step)
	}
	if _, ok := next.Fields[fieldDateTime]; ok {
		t.Fatalf("conflicting time must be cleared")
	}
	if next.Fields[fieldName] != "Anna Petrova" {
		t.Fatalf("other answers must survive: %+v", next.Fields)
	}
	if !strings.HasPrefix(out[0].Text, "This time overlaps") {
		t.Fatalf("conflict reason missing: %q", out[0].Text)
	}

	// новое время сразу ведёт к подтверждению, тема уже собрана
	h.reserver.err = nil
	next, out = h.handle(t, next, "2030-01-07 11:00")
	if next.Step != stepConfirm {
		t.Fatalf("expected confirm step after new time, got %s", next.Step)
	}
	if next.Fields[fieldTopic] != "Work stress" || !strings.Contains(out[0].Text, "Work stress") {
		t.Fatalf("summary must keep the collected topic: %q", out[0].Text)
	}
	if next, _ = h.handle(t, next, "yes"); next != nil {
		t.Fatalf("second attempt must complete")
	}
	if len(h.reserver.requests) != 2 {
		t.Fatalf("expected two reserve calls, got %d", len(h.reserver.requests))
	}
}

func TestEngine_ConfirmRequiresAffirmative(t *testing.T) {
	h := newHarness(t, 0, 0)
	sess := h.fill(t, session.FlowSupport, "/support", 3)

	next, out := h.handle(t, sess, "maybe")
	if next == nil || next.Step != stepConfirm {
		t.Fatalf("session must stay on confirm, got %+v", next)
	}
	if !strings.Contains(out[0].Text, msgConfirmRequired) {
		t.Fatalf("unexpected reply %q", out[0].Text)
	}
	if len(h.intake.support) != 0 {
		t.Fatalf("nothing must be submitted without confirmation")
	}

	next, _, err := h.engine.Handle(context.Background(), next, messaging.Inbound{UserID: "u1", ActionID: actionConfirm})
	if err != nil || next != nil {
		t.Fatalf("confirm action must complete: %v %+v", err, next)
	}
	if len(h.intake.support) != 1 || h.intake.support[0].ClientID != testClient {
		t.Fatalf("support request not stored: %+v", h.intake.support)
	}
}

func TestEngine_BookOrderStartsPayment(t *testing.T) {
	h := newHarness(t, 0, 1500)
	sess := h.fill(t, session.FlowBookOrder, "/order", 4)
	if !strings.Contains(func() string { _, out := h.handle(t, sess, "maybe"); return out[0].Text }(), "Total: 30.00") {
		t.Fatalf("summary must show the total")
	}

	next, out := h.handle(t, sess, "yes")
	if next != nil {
		t.Fatalf("order must complete")
	}
	order := h.intake.orders[0]
	if order.Quantity != 2 || order.TotalCents != 3000 {
		t.Fatalf("unexpected order %+v", order)
	}
	want := order.Reference() + "/3000/+79991234567"
	if len(h.payments.calls) != 1 || h.payments.calls[0] != want {
		t.Fatalf("unexpected payment calls %v, want %s", h.payments.calls, want)
	}
	if !strings.Contains(out[0].Text, order.Reference()) {
		t.Fatalf("reply must contain the reference: %q", out[0].Text)
	}
}

func TestEngine_MentorshipLevelByAction(t *testing.T) {
	h := newHarness(t, 0, 0)
	sess := h.fill(t, session.FlowMentorship, "/mentorship", 3)

	next, out := h.handle(t, sess, "expert")
	if next.Step != fieldLevel || !strings.Contains(out[0].Text, "beginner, intermediate, advanced") {
		t.Fatalf("unknown level must be rejected: %q", out[0].Text)
	}
	next, _, err := h.engine.Handle(context.Background(), sess, messaging.Inbound{UserID: "u1", ActionID: levelAction + "advanced"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if next.Step != fieldGoals || next.Fields[fieldLevel] != "advanced" {
		t.Fatalf("unexpected session %+v", next)
	}
}

func TestEngine_Review(t *testing.T) {
	h := newHarness(t, 0, 0)
	sess := h.fill(t, session.FlowReview, "/review", 3)
	if sess.Fields[fieldCode] != "AB12CD" || sess.Fields[fieldComment] != "" {
		t.Fatalf("unexpected fields %+v", sess.Fields)
	}
	if next, _ := h.handle(t, sess, "y"); next != nil {
		t.Fatalf("review must complete")
	}
	if len(h.intake.reviews) != 1 || h.intake.reviews[0].Rating != 5 {
		t.Fatalf("review not stored: %+v", h.intake.reviews)
	}
}

func TestEngine_ReviewRejectsForeignCode(t *testing.T) {
	h := newHarness(t, 0, 0)
	h.intake.checkErr = &service.ValidationError{Reason: "appointment AB12CD does not belong to you"}
	sess := h.fill(t, session.FlowReview, "/review", 0)

	next, out := h.handle(t, sess, "ab12cd")
	if next.Step != fieldCode {
		t.Fatalf("step must not advance, got %s", next.Step)
	}
	if !strings.HasPrefix(out[0].Text, "Appointment AB12CD does not belong to you.") {
		t.Fatalf("unexpected reply %q", out[0].Text)
	}

	h.clients.missing = true
	_, out = h.handle(t, sess, "ab12cd")
	if !strings.Contains(out[0].Text, "could not find any appointments") {
		t.Fatalf("unexpected reply %q", out[0].Text)
	}
}

func TestEngine_NoSession(t *testing.T) {
	h := newHarness(t, 0, 0)

	next, out := h.handle(t, nil, "hello")
	if next != nil || out[0].Text != msgMenu || len(out[0].Keyboard) != 5 {
		t.Fatalf("expected menu, got %+v", out)
	}
	next, out = h.handle(t, nil, "cancel")
	if next != nil || out[0].Text != msgNothingToCancel {
		t.Fatalf("unexpected reply %+v", out)
	}
	next, _, err := h.engine.Handle(context.Background(), nil, messaging.Inbound{UserID: "u1", ActionID: "flow:review"})
	if err != nil || next == nil || next.Flow != session.FlowReview {
		t.Fatalf("flow action must start review: %v %+v", err, next)
	}
}

func TestEngine_DispatchPersistsAndReplaces(t *testing.T) {
	h := newHarness(t, 0, 0)
	ctx := context.Background()
	send := func(text string) {
		t.Helper()
		if err := h.engine.Dispatch(ctx, messaging.Inbound{UserID: "u1", Text: text}); err != nil {
			t.Fatalf("dispatch %q: %v", text, err)
		}
	}

	send("/book")
	send("Anna Petrova")
	sess, err := h.store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Flow != session.FlowBooking || sess.Step != fieldDateOfBirth || sess.LastMessageID != "m2" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if h.messenger.sent[0].ReplaceMessageID != "" || h.messenger.sent[1].ReplaceMessageID != "m1" {
		t.Fatalf("second prompt must replace the first: %+v", h.messenger.sent)
	}

	// новый поток вытесняет запись
	send("/support")
	sess, err = h.store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.Flow != session.FlowSupport || sess.Step != fieldName || len(sess.Fields) != 0 {
		t.Fatalf("support must replace booking: %+v", sess)
	}

	send("stop")
	if _, err := h.store.Get(ctx, "u1"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("session must be cleared, got %v", err)
	}
}
