package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sakif/servicehours/internal/auth"
	"github.com/sakif/servicehours/internal/handler"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/service"
)

// =========================================================================
// MOCK SERVICES
// =========================================================================
//
// Each mock records the arguments it saw and returns whatever the test put
// in its fields, so handler tests exercise only HTTP concerns.

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockEvents struct {
	event    *model.Event
	events   []model.Event
	err      error
	gotInput service.EventInput
	gotActor model.Identity
	gotID    string
	gotQuery []any
}

func (m *mockEvents) Create(_ context.Context, actor model.Identity, in service.EventInput) (*model.Event, error) {
	m.gotActor, m.gotInput = actor, in
	return m.event, m.err
}

func (m *mockEvents) Delete(_ context.Context, actor model.Identity, id string) error {
	m.gotActor, m.gotID = actor, id
	return m.err
}

func (m *mockEvents) Get(_ context.Context, id string) (*model.Event, error) {
	m.gotID = id
	return m.event, m.err
}

func (m *mockEvents) List(_ context.Context, location string, limit, offset int) ([]model.Event, error) {
	m.gotQuery = []any{location, limit, offset}
	return m.events, m.err
}

type mockRegistrations struct {
	reg        *model.Registration
	regs       []model.Registration
	err        error
	gotUserID  string
	gotEventID string
}

func (m *mockRegistrations) Register(_ context.Context, userID, eventID string) (*model.Registration, error) {
	m.gotUserID, m.gotEventID = userID, eventID
	return m.reg, m.err
}

func (m *mockRegistrations) Unregister(_ context.Context, userID, eventID string) error {
	m.gotUserID, m.gotEventID = userID, eventID
	return m.err
}

func (m *mockRegistrations) ListForUser(_ context.Context, userID string) ([]model.Registration, error) {
	m.gotUserID = userID
	return m.regs, m.err
}

type mockHours struct {
	req        *model.HourRequest
	reqs       []model.HourRequest
	err        error
	gotUserID  string
	gotEventID string
	gotHours   int
	gotDecider string
	gotID      string
	decision   string
}

func (m *mockHours) Submit(_ context.Context, userID, eventID string, hours int) (*model.HourRequest, error) {
	m.gotUserID, m.gotEventID, m.gotHours = userID, eventID, hours
	return m.req, m.err
}

func (m *mockHours) Approve(_ context.Context, deciderID, requestID string) (*model.HourRequest, error) {
	m.gotDecider, m.gotID, m.decision = deciderID, requestID, "approve"
	return m.req, m.err
}

func (m *mockHours) Reject(_ context.Context, deciderID, requestID string) (*model.HourRequest, error) {
	m.gotDecider, m.gotID, m.decision = deciderID, requestID, "reject"
	return m.req, m.err
}

func (m *mockHours) ListPending(context.Context) ([]model.HourRequest, error) {
	return m.reqs, m.err
}

func (m *mockHours) ListForUser(_ context.Context, userID string) ([]model.HourRequest, error) {
	m.gotUserID = userID
	return m.reqs, m.err
}

type mockProgress struct {
	progress *model.Progress
	certs    []service.Certificate
	err      error
	onView   func() // runs inside View, before it returns
}

func (m *mockProgress) View(_ context.Context, userID string) (*model.Progress, error) {
	if m.onView != nil {
		m.onView()
	}
	if m.err != nil {
		return nil, m.err
	}
	p := *m.progress
	p.UserID = userID
	return &p, nil
}

func (m *mockProgress) Certificates(context.Context, string) ([]service.Certificate, error) {
	return m.certs, m.err
}

// =========================================================================
// ROUTING HELPERS
// =========================================================================

// serve routes one request through a chi router so URL params resolve. A
// non-nil identity is put in the context the way RequireAuth would.
func serve(method, pattern string, h http.HandlerFunc, req *http.Request, identity *model.Identity) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if identity != nil {
				req = req.WithContext(auth.WithIdentity(req.Context(), *identity))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.MethodFunc(method, pattern, h)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	return body
}

var (
	volunteer = &model.Identity{UserID: "vol-1", DisplayName: "Ana", Role: model.RoleVolunteer}
	organizer = &model.Identity{UserID: "org-1", DisplayName: "Olga", Role: model.RoleOrganizer}
)
