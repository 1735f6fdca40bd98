package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/notify"
	"github.com/sakif/servicehours/internal/repository"
)

// =========================================================================
// FAKE REPOSITORIES
// =========================================================================
//
// In-memory stand-ins for the repository interfaces. Each stores copies so
// a test cannot mutate stored state through a returned pointer, and each
// has an err field to simulate a store outage.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var errStoreDown = apperror.StoreUnavailable("fake", fmt.Errorf("connection refused"))

type fakeEventRepo struct {
	mu     sync.Mutex
	events map[string]*model.Event
	nextID int
	err    error
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{events: make(map[string]*model.Event)}
}

func (f *fakeEventRepo) Create(_ context.Context, event *model.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.nextID++
	event.ID = fmt.Sprintf("event-%d", f.nextID)
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	stored := *event
	f.events[event.ID] = &stored
	return nil
}

func (f *fakeEventRepo) GetByID(_ context.Context, id string) (*model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	e, ok := f.events[id]
	if !ok {
		return nil, apperror.NotFound("event", id)
	}
	result := *e
	return &result, nil
}

func (f *fakeEventRepo) List(_ context.Context, filter repository.EventFilter) ([]model.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	result := []model.Event{}
	for _, e := range f.events {
		if filter.Location != "" && e.Location != filter.Location {
			continue
		}
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if filter.Offset >= len(result) {
		return []model.Event{}, nil
	}
	result = result[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (f *fakeEventRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.events[id]; !ok {
		return apperror.NotFound("event", id)
	}
	delete(f.events, id)
	return nil
}

// add seeds an event directly.
func (f *fakeEventRepo) add(e model.Event) *model.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := e
	f.events[e.ID] = &stored
	return &stored
}

type fakeRegistrationRepo struct {
	mu      sync.Mutex
	regs    map[string]*model.Registration
	err     error
	updates int
}

func newFakeRegistrationRepo() *fakeRegistrationRepo {
	return &fakeRegistrationRepo{regs: make(map[string]*model.Registration)}
}

func (f *fakeRegistrationRepo) Create(_ context.Context, reg *model.Registration, limit int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	reg.ID = model.RegistrationID(reg.UserID, reg.EventID)
	if _, ok := f.regs[reg.ID]; ok {
		return apperror.Conflict("registration", reg.ID)
	}
	if limit > 0 && f.countByEvent(reg.EventID) >= limit {
		return apperror.ConflictMessage(fmt.Sprintf("event %s is full", reg.EventID))
	}
	reg.RegisteredAt = time.Now()
	stored := *reg
	f.regs[reg.ID] = &stored
	return nil
}

func (f *fakeRegistrationRepo) Get(_ context.Context, userID, eventID string) (*model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	id := model.RegistrationID(userID, eventID)
	r, ok := f.regs[id]
	if !ok {
		return nil, apperror.NotFound("registration", id)
	}
	result := *r
	return &result, nil
}

func (f *fakeRegistrationRepo) Delete(_ context.Context, userID, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	id := model.RegistrationID(userID, eventID)
	if _, ok := f.regs[id]; !ok {
		return apperror.NotFound("registration", id)
	}
	delete(f.regs, id)
	return nil
}

func (f *fakeRegistrationRepo) ListByUser(_ context.Context, userID string) ([]model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	result := []model.Registration{}
	for _, r := range f.regs {
		if r.UserID == userID {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EventID < result[j].EventID })
	return result, nil
}

// countByEvent expects f.mu to be held.
func (f *fakeRegistrationRepo) countByEvent(eventID string) int {
	n := 0
	for _, r := range f.regs {
		if r.EventID == eventID {
			n++
		}
	}
	return n
}

func (f *fakeRegistrationRepo) UpdateHoursApproved(_ context.Context, userID, eventID string, hours int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if r, ok := f.regs[model.RegistrationID(userID, eventID)]; ok {
		r.HoursApproved = hours
		f.updates++
	}
	return nil
}

type fakeHourRepo struct {
	mu     sync.Mutex
	reqs   map[string]*model.HourRequest
	order  []string
	nextID int
	err    error
}

func newFakeHourRepo() *fakeHourRepo {
	return &fakeHourRepo{reqs: make(map[string]*model.HourRequest)}
}

func (f *fakeHourRepo) Create(_ context.Context, req *model.HourRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.nextID++
	req.ID = fmt.Sprintf("req-%d", f.nextID)
	if req.Status == "" {
		req.Status = model.HourRequestPending
	}
	req.RequestedAt = time.Now()
	stored := *req
	f.reqs[req.ID] = &stored
	f.order = append(f.order, req.ID)
	return nil
}

func (f *fakeHourRepo) GetByID(_ context.Context, id string) (*model.HourRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.reqs[id]
	if !ok {
		return nil, apperror.NotFound("hour request", id)
	}
	result := *r
	return &result, nil
}

func (f *fakeHourRepo) Transition(_ context.Context, id string, to model.HourRequestStatus, decidedBy string, at time.Time) (*model.HourRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.reqs[id]
	if !ok {
		return nil, apperror.NotFound("hour request", id)
	}
	if r.Status != model.HourRequestPending {
		return nil, apperror.InvalidState("hour request", id, string(r.Status))
	}
	r.Status = to
	r.DecidedBy = decidedBy
	decided := at
	r.DecidedAt = &decided
	result := *r
	return &result, nil
}

func (f *fakeHourRepo) filter(keep func(*model.HourRequest) bool) ([]model.HourRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	result := []model.HourRequest{}
	for _, id := range f.order {
		if r := f.reqs[id]; keep(r) {
			result = append(result, *r)
		}
	}
	return result, nil
}

func (f *fakeHourRepo) ListApprovedByUser(_ context.Context, userID string) ([]model.HourRequest, error) {
	return f.filter(func(r *model.HourRequest) bool {
		return r.UserID == userID && r.Status == model.HourRequestApproved
	})
}

func (f *fakeHourRepo) ListByUser(_ context.Context, userID string) ([]model.HourRequest, error) {
	return f.filter(func(r *model.HourRequest) bool { return r.UserID == userID })
}

func (f *fakeHourRepo) ListPending(_ context.Context) ([]model.HourRequest, error) {
	return f.filter(func(r *model.HourRequest) bool { return r.Status == model.HourRequestPending })
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	saves    int
	err      error
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*model.Account)}
}

func (f *fakeAccountRepo) Get(_ context.Context, userID string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.accounts[userID]
	if !ok {
		return nil, apperror.NotFound("account", userID)
	}
	result := *a
	return &result, nil
}

func (f *fakeAccountRepo) Save(_ context.Context, account *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	account.UpdatedAt = time.Now()
	stored := *account
	f.accounts[account.UserID] = &stored
	f.saves++
	return nil
}

type fakeCertificateRepo struct {
	mu      sync.Mutex
	unlocks map[string]model.CertificateUnlock
	records int
	err     error
}

func newFakeCertificateRepo() *fakeCertificateRepo {
	return &fakeCertificateRepo{unlocks: make(map[string]model.CertificateUnlock)}
}

func (f *fakeCertificateRepo) ListByUser(_ context.Context, userID string) ([]model.CertificateUnlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	result := []model.CertificateUnlock{}
	for _, u := range f.unlocks {
		if u.UserID == userID {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EventID < result[j].EventID })
	return result, nil
}

func (f *fakeCertificateRepo) Record(_ context.Context, unlock *model.CertificateUnlock) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	key := unlock.UserID + "/" + unlock.EventID
	if _, ok := f.unlocks[key]; ok {
		return false, nil
	}
	if unlock.UnlockedAt.IsZero() {
		unlock.UnlockedAt = time.Now()
	}
	f.unlocks[key] = *unlock
	f.records++
	return true, nil
}

type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	nextID int
	err    error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	user.Email = strings.ToLower(user.Email)
	for _, u := range f.users {
		if user.Email != "" && u.Email == user.Email {
			return apperror.ConflictMessage("an account with that email already exists")
		}
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	if user.Role == "" {
		user.Role = model.RoleVolunteer
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.users[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.users {
		if u.Email == email {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) UpsertGitHub(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	for _, u := range f.users {
		if u.GitHubID != nil && user.GitHubID != nil && *u.GitHubID == *user.GitHubID {
			u.DisplayName = user.DisplayName
			*user = *u
			f.mu.Unlock()
			return nil
		}
	}
	f.mu.Unlock()
	return f.Create(ctx, user)
}

func (f *fakeUserRepo) SetRole(_ context.Context, id string, role model.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	u, ok := f.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Role = role
	return nil
}

// =========================================================================
// RECORDING PUBLISHER
// =========================================================================

type recordingPublisher struct {
	mu           sync.Mutex
	progress     []model.Progress
	certificates []notify.CertificateUnlocked
	sessions     []notify.SessionChanged
	err          error
}

func (p *recordingPublisher) PublishProgress(_ context.Context, progress model.Progress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = append(p.progress, progress)
	return p.err
}

func (p *recordingPublisher) PublishCertificate(_ context.Context, cert notify.CertificateUnlocked) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.certificates = append(p.certificates, cert)
	return p.err
}

func (p *recordingPublisher) PublishSession(_ context.Context, change notify.SessionChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = append(p.sessions, change)
	return p.err
}

// =========================================================================
// FIXTURE
// =========================================================================

// fixture wires every service over one set of fakes, the way server.New
// wires them over SQLite.
type fixture struct {
	events        *fakeEventRepo
	registrations *fakeRegistrationRepo
	hours         *fakeHourRepo
	accounts      *fakeAccountRepo
	certificates  *fakeCertificateRepo
	users         *fakeUserRepo
	publisher     *recordingPublisher

	engine      *AccountingEngine
	hourSvc     *HourService
	registerSvc *RegistrationService
	eventSvc    *EventService
	progressSvc *ProgressService
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	policy          UnregisterPolicy
	enforceCapacity bool
	eventPolicy     EventPolicy
}

func withPolicy(p UnregisterPolicy) fixtureOption {
	return func(c *fixtureConfig) { c.policy = p }
}

func withCapacity() fixtureOption {
	return func(c *fixtureConfig) { c.enforceCapacity = true }
}

func withEventPolicy(p EventPolicy) fixtureOption {
	return func(c *fixtureConfig) { c.eventPolicy = p }
}

func newFixture(opts ...fixtureOption) *fixture {
	cfg := fixtureConfig{policy: HoursRetain, eventPolicy: DefaultEventPolicy()}
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &fixture{
		events:        newFakeEventRepo(),
		registrations: newFakeRegistrationRepo(),
		hours:         newFakeHourRepo(),
		accounts:      newFakeAccountRepo(),
		certificates:  newFakeCertificateRepo(),
		users:         newFakeUserRepo(),
		publisher:     &recordingPublisher{},
	}
	logger := testLogger()
	f.engine = NewAccountingEngine(f.hours, f.registrations, f.accounts, f.certificates, f.publisher, model.DefaultThresholds(), cfg.policy, logger)
	f.hourSvc = NewHourService(f.hours, f.events, f.engine, logger)
	f.registerSvc = NewRegistrationService(f.registrations, f.events, f.engine, cfg.policy, cfg.enforceCapacity, logger)
	f.eventSvc = NewEventService(f.events, cfg.eventPolicy, logger)
	f.progressSvc = NewProgressService(f.engine, f.users, f.events)

	f.events.add(model.Event{ID: "e1", Name: "Food bank", Date: "2026-11-01", Location: model.LocationElPaso, UserLimit: 2, CreatedBy: "org-1"})
	f.events.add(model.Event{ID: "e2", Name: "Park cleanup", Date: "2026-11-08", Location: model.LocationJuarez, CreatedBy: "org-2"})
	return f
}
