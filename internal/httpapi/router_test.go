package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/counseling-booking/internal/calendar"
	"github.com/Leganyst/counseling-booking/internal/messaging"
	"github.com/Leganyst/counseling-booking/internal/model"
	"github.com/Leganyst/counseling-booking/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var providerID = uuid.MustParse("8f6a1c1e-3d5b-4f0a-9a6e-2b7c4d1e0f11")

type fakeAppointments struct {
	err      error
	reserved []service.ReserveRequest
	list     []model.Appointment
	status   model.AppointmentStatus
	deleted  []string
}

func (f *fakeAppointments) appointment(start, end time.Time) *model.Appointment {
	return &model.Appointment{
		ID:            uuid.New(),
		Code:          "K7Q2M9",
		ProviderID:    providerID,
		StartsAt:      start,
		EndsAt:        end,
		Status:        model.AppointmentStatusPending,
		PaymentStatus: model.PaymentStatusNotRequired,
	}
}

func (f *fakeAppointments) Reserve(_ context.Context, req service.ReserveRequest) (*model.Appointment, error) {
	f.reserved = append(f.reserved, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.appointment(req.Start, req.End), nil
}

func (f *fakeAppointments) Get(_ context.Context, id string) (*model.Appointment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.appointment(time.Now(), time.Now().Add(time.Hour)), nil
}

func (f *fakeAppointments) GetByCode(ctx context.Context, code string) (*model.Appointment, error) {
	return f.Get(ctx, code)
}

func (f *fakeAppointments) ListByProvider(_ context.Context, _ string, _, _ time.Time, page, pageSize int) (calendar.Page[model.Appointment], error) {
	if f.err != nil {
		return calendar.Page[model.Appointment]{}, f.err
	}
	return calendar.Paginate(f.list, page, pageSize), nil
}

func (f *fakeAppointments) UpdateStatus(_ context.Context, _ string, to model.AppointmentStatus) (*model.Appointment, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.status = to
	a := f.appointment(time.Now(), time.Now().Add(time.Hour))
	a.Status = to
	return a, nil
}

func (f *fakeAppointments) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeCalendar struct {
	err      error
	absences []string
	rules    []model.ScheduleRule
	starts   []*time.Time
}

func (f *fakeCalendar) ListProviders(context.Context) ([]model.Provider, error) {
	return []model.Provider{{ID: providerID, DisplayName: "Dr. Ivanova"}}, nil
}

func (f *fakeCalendar) GetProvider(_ context.Context, id string) (*model.Provider, error) {
	if id != providerID.String() {
		return nil, service.ErrNotFound
	}
	return &model.Provider{ID: providerID, DisplayName: "Dr. Ivanova"}, nil
}

func (f *fakeCalendar) CreateProvider(_ context.Context, name, description string) (*model.Provider, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Provider{ID: uuid.New(), DisplayName: name, Description: description}, nil
}

func (f *fakeCalendar) AddAbsence(_ context.Context, _, date, reason string) (*model.AbsenceDay, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.absences = append(f.absences, date)
	return &model.AbsenceDay{ID: uuid.New(), ProviderID: providerID, Reason: reason}, nil
}

func (f *fakeCalendar) AddSlot(_ context.Context, _ string, start, end time.Time) (*model.AvailabilitySlot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.AvailabilitySlot{ID: uuid.New(), ProviderID: providerID, StartsAt: start, EndsAt: end}, nil
}

func (f *fakeCalendar) ListSlots(context.Context, string, time.Time, time.Time) ([]model.AvailabilitySlot, error) {
	return nil, f.err
}

func (f *fakeCalendar) AddSchedule(_ context.Context, _ string, rule model.ScheduleRule, start, _ *time.Time) (*model.Schedule, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.rules = append(f.rules, rule)
	f.starts = append(f.starts, start)
	return &model.Schedule{ID: uuid.New(), ProviderID: providerID}, nil
}

func (f *fakeCalendar) GenerateSlots(_ context.Context, _ string, window calendar.TimeRange) ([]model.AvailabilitySlot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.AvailabilitySlot{{ID: uuid.New(), ProviderID: providerID, StartsAt: window.Start, EndsAt: window.Start.Add(time.Hour)}}, nil
}

type fakeInbound struct {
	mu  sync.Mutex
	got []messaging.Inbound
	err error
}

func (f *fakeInbound) Dispatch(_ context.Context, in messaging.Inbound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, in)
	return f.err
}

func newTestRouter(appts *fakeAppointments, cal *fakeCalendar, inbound *fakeInbound, perMinute int) *gin.Engine {
	return NewRouter(Config{
		Appointments:     appts,
		Calendar:         cal,
		Inbound:          inbound,
		InboundPerMinute: perMinute,
	})
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return out.Error
}

func TestCreateAppointment_OK(t *testing.T) {
	appts := &fakeAppointments{}
	r := newTestRouter(appts, &fakeCalendar{}, nil, 0)

	w := do(t, r, http.MethodPost, "/appointments", map[string]any{
		"provider_id": providerID.String(),
		"start":       "2030-01-07T10:00:00+03:00",
		"end":         "2030-01-07T11:00:00+03:00",
		"intake":      map[string]string{"topic": "stress"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var got appointmentDTO
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Code != "K7Q2M9" || got.ProviderID != providerID.String() {
		t.Fatalf("unexpected body %+v", got)
	}
	if !got.Start.Equal(time.Date(2030, 1, 7, 7, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", got.Start)
	}
	if len(appts.reserved) != 1 || appts.reserved[0].Intake["topic"] != "stress" || appts.reserved[0].ClientID != nil {
		t.Fatalf("unexpected reserve request %+v", appts.reserved)
	}
}

func TestCreateAppointment_BadInput(t *testing.T) {
	appts := &fakeAppointments{}
	r := newTestRouter(appts, &fakeCalendar{}, nil, 0)

	w := do(t, r, http.MethodPost, "/appointments", map[string]any{"provider_id": providerID.String()})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing times: expected 400, got %d", w.Code)
	}
	w = do(t, r, http.MethodPost, "/appointments", map[string]any{
		"provider_id": providerID.String(),
		"client_id":   "nope",
		"start":       "2030-01-07T10:00:00Z",
		"end":         "2030-01-07T11:00:00Z",
	})
	if w.Code != http.StatusBadRequest || errorOf(t, w) != "invalid client_id" {
		t.Fatalf("bad client id: got %d %s", w.Code, w.Body.String())
	}
	if len(appts.reserved) != 0 {
		t.Fatalf("service must not be called on bad input")
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"validation", fmt.Errorf("wrap: %w", &service.ValidationError{Reason: "appointments are available between 08:00 and 17:00"}), http.StatusBadRequest, "appointments are available between 08:00 and 17:00"},
		{"conflict", &service.ConflictError{Reason: "this time overlaps another appointment"}, http.StatusConflict, "this time overlaps another appointment"},
		{"not found", service.ErrNotFound, http.StatusNotFound, "not found"},
		{"transition", fmt.Errorf("%w: completed -> pending", service.ErrInvalidTransition), http.StatusConflict, "invalid status transition: completed -> pending"},
		{"internal", errors.New("db is down"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		r := newTestRouter(&fakeAppointments{err: tc.err}, &fakeCalendar{}, nil, 0)
		w := do(t, r, http.MethodPatch, "/appointments/"+uuid.NewString()+"/status", map[string]string{"status": "pending"})
		if w.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, w.Code)
		}
		if got := errorOf(t, w); got != tc.reason {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.reason, got)
		}
	}
}

func TestUpdateStatusAndDelete(t *testing.T) {
	appts := &fakeAppointments{}
	r := newTestRouter(appts, &fakeCalendar{}, nil, 0)

	w := do(t, r, http.MethodPatch, "/appointments/a1/status", map[string]string{"status": "confirmed"})
	if w.Code != http.StatusOK || appts.status != model.AppointmentStatusConfirmed {
		t.Fatalf("update status: %d %s", w.Code, w.Body.String())
	}
	w = do(t, r, http.MethodDelete, "/appointments/a1", nil)
	if w.Code != http.StatusNoContent || len(appts.deleted) != 1 || appts.deleted[0] != "a1" {
		t.Fatalf("delete: %d %v", w.Code, appts.deleted)
	}
	w = do(t, r, http.MethodGet, "/appointments/code/k7q2m9", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get by code: %d", w.Code)
	}
}

func TestProviderAppointments_Paginated(t *testing.T) {
	appts := &fakeAppointments{}
	base := time.Date(2030, 1, 7, 7, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		appts.list = append(appts.list, *appts.appointment(base.Add(time.Duration(i)*time.Hour), base.Add(time.Duration(i+1)*time.Hour)))
	}
	r := newTestRouter(appts, &fakeCalendar{}, nil, 0)

	path := "/providers/" + providerID.String() + "/appointments?from=2030-01-07T00:00:00Z&to=2030-01-08T00:00:00Z&page=2&page_size=2"
	w := do(t, r, http.MethodGet, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var got pageDTO[appointmentDTO]
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 3 || len(got.Items) != 1 || got.HasNext || !got.HasPrev {
		t.Fatalf("unexpected page %+v", got)
	}

	w = do(t, r, http.MethodGet, "/providers/"+providerID.String()+"/appointments?to=2030-01-08T00:00:00Z", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing from: expected 400, got %d", w.Code)
	}
}

func TestProviderCalendarEndpoints(t *testing.T) {
	cal := &fakeCalendar{}
	r := newTestRouter(&fakeAppointments{}, cal, nil, 0)
	base := "/providers/" + providerID.String()

	if w := do(t, r, http.MethodGet, "/providers/"+uuid.NewString(), nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown provider: expected 404, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/providers", map[string]string{"display_name": "Dr. Smirnov"}); w.Code != http.StatusCreated {
		t.Fatalf("create provider: %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, base+"/absences", map[string]string{"date": "2030-01-08"}); w.Code != http.StatusCreated {
		t.Fatalf("add absence: %d", w.Code)
	}
	if len(cal.absences) != 1 || cal.absences[0] != "2030-01-08" {
		t.Fatalf("absence not passed: %v", cal.absences)
	}

	w := do(t, r, http.MethodPost, base+"/schedules", map[string]any{
		"rule": map[string]any{
			"weekdays":     []int{1, 3},
			"start_time":   "10:00",
			"end_time":     "12:00",
			"slot_minutes": 60,
		},
		"start_date": "2030-01-01",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add schedule: %d %s", w.Code, w.Body.String())
	}
	if len(cal.rules) != 1 || cal.rules[0].SlotMinutes != 60 || len(cal.rules[0].Weekdays) != 2 {
		t.Fatalf("rule not passed: %+v", cal.rules)
	}
	if cal.starts[0] == nil || cal.starts[0].Day() != 1 {
		t.Fatalf("start date not passed: %v", cal.starts[0])
	}
	if w := do(t, r, http.MethodPost, base+"/schedules", map[string]any{"rule": map[string]any{}, "end_date": "01.02.2030"}); w.Code != http.StatusBadRequest {
		t.Fatalf("bad end_date: expected 400, got %d", w.Code)
	}

	w = do(t, r, http.MethodPost, base+"/slots/generate", map[string]string{
		"from": "2030-01-07T00:00:00Z",
		"to":   "2030-01-14T00:00:00Z",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("generate: %d %s", w.Code, w.Body.String())
	}

	cal.err = &service.ConflictError{Reason: "slot overlaps an existing slot"}
	w = do(t, r, http.MethodPost, base+"/slots", map[string]string{
		"start": "2030-01-07T10:00:00+03:00",
		"end":   "2030-01-07T11:00:00+03:00",
	})
	if w.Code != http.StatusConflict || errorOf(t, w) != "slot overlaps an existing slot" {
		t.Fatalf("add slot conflict: %d %s", w.Code, w.Body.String())
	}
}

func TestWebhook_DispatchesAndLimits(t *testing.T) {
	inbound := &fakeInbound{}
	r := newTestRouter(&fakeAppointments{}, &fakeCalendar{}, inbound, 2)

	for i := 0; i < 2; i++ {
		w := do(t, r, http.MethodPost, "/messages", map[string]string{"user_id": "u1", "text": "/book"})
		if w.Code != http.StatusAccepted {
			t.Fatalf("message %d: expected 202, got %d", i, w.Code)
		}
	}
	w := do(t, r, http.MethodPost, "/messages", map[string]string{"user_id": "u1", "text": "again"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	// лимит считается отдельно для каждого пользователя
	w = do(t, r, http.MethodPost, "/messages", map[string]string{"user_id": "u2", "action_id": "flow:support"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("other user: expected 202, got %d", w.Code)
	}
	if len(inbound.got) != 3 || inbound.got[2].ActionID != "flow:support" {
		t.Fatalf("unexpected dispatched messages %+v", inbound.got)
	}

	if w := do(t, r, http.MethodPost, "/messages", map[string]string{"text": "hi"}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing user_id: expected 400, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/messages", map[string]string{"user_id": "u3"}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty message: expected 400, got %d", w.Code)
	}
}

func TestWebhook_EvictsIdleGates(t *testing.T) {
	now := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	wh := newWebhookHandler(&fakeInbound{}, 1, zap.NewNop())
	wh.now = func() time.Time { return now }
	r := gin.New()
	r.POST("/messages", wh.Receive)

	for i := 0; i < 50; i++ {
		w := do(t, r, http.MethodPost, "/messages", map[string]string{"user_id": fmt.Sprintf("user-%d", i), "text": "hi"})
		if w.Code != http.StatusAccepted {
			t.Fatalf("user %d: expected 202, got %d", i, w.Code)
		}
	}
	if len(wh.gates) != 50 {
		t.Fatalf("expected 50 gates, got %d", len(wh.gates))
	}
	// лимит ещё действует, пока шлюз не простоял gateIdle
	if w := do(t, r, http.MethodPost, "/messages", map[string]string{"user_id": "user-0", "text": "again"}); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 before eviction, got %d", w.Code)
	}

	now = now.Add(gateIdle + time.Second)
	if w := do(t, r, http.MethodPost, "/messages", map[string]string{"user_id": "user-0", "text": "later"}); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202 after idle period, got %d", w.Code)
	}
	if len(wh.gates) != 1 {
		t.Fatalf("idle gates must be evicted, %d left", len(wh.gates))
	}
	if _, ok := wh.gates["user-0"]; !ok {
		t.Fatalf("active user's gate must stay")
	}
}
