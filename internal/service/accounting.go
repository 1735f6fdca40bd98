// Package service holds the business rules of the service-hours tracker.
//
//	Handler (HTTP) → Service (rules) → Repository (SQLite)
//	                        ↘ notify.Publisher (progress / certificate events)
//
// Services take repository interfaces, never *sqlite.DB, so tests inject
// in-memory fakes. They return apperror kinds and never HTTP status codes.
//
// The hour ledger (hour_requests) is the only source of truth for approved
// hours. Registration hour totals and account coin balances are caches the
// AccountingEngine rebuilds from the ledger.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/model"
	"github.com/sakif/servicehours/internal/notify"
	"github.com/sakif/servicehours/internal/repository"
)

// UnregisterPolicy decides whether hours approved for an event still count
// after the user unregisters from it.
type UnregisterPolicy string

const (
	// HoursRetain counts every approved request in the ledger.
	HoursRetain UnregisterPolicy = "retain"
	// HoursExclude counts only events the user is still registered for.
	HoursExclude UnregisterPolicy = "exclude"
)

func (p UnregisterPolicy) Valid() bool {
	return p == HoursRetain || p == HoursExclude
}

// Recomputer is the slice of AccountingEngine other services trigger.
type Recomputer interface {
	RecomputeForUser(ctx context.Context, userID string) (*model.Progress, error)
}

// AccountingEngine derives per-event hours, total, coins and certificate
// eligibility from the approved ledger, and writes the caches back.
type AccountingEngine struct {
	hours         repository.HourRequestRepository
	registrations repository.RegistrationRepository
	accounts      repository.AccountRepository
	certificates  repository.CertificateRepository
	publisher     notify.Publisher
	thresholds    model.Thresholds
	policy        UnregisterPolicy
	logger        *slog.Logger
}

var _ Recomputer = (*AccountingEngine)(nil)

func NewAccountingEngine(
	hours repository.HourRequestRepository,
	registrations repository.RegistrationRepository,
	accounts repository.AccountRepository,
	certificates repository.CertificateRepository,
	publisher notify.Publisher,
	thresholds model.Thresholds,
	policy UnregisterPolicy,
	logger *slog.Logger,
) *AccountingEngine {
	if !policy.Valid() {
		policy = HoursRetain
	}
	return &AccountingEngine{
		hours:         hours,
		registrations: registrations,
		accounts:      accounts,
		certificates:  certificates,
		publisher:     publisher,
		thresholds:    thresholds,
		policy:        policy,
		logger:        logger,
	}
}

func (e *AccountingEngine) Policy() UnregisterPolicy { return e.policy }

func (e *AccountingEngine) Thresholds() model.Thresholds { return e.thresholds }

// RecomputeForUser rebuilds the user's progress from the ledger. It is
// idempotent: a second call with no ledger change writes nothing and
// publishes nothing.
func (e *AccountingEngine) RecomputeForUser(ctx context.Context, userID string) (*model.Progress, error) {
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "user id is required")
	}

	approved, err := e.hours.ListApprovedByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/accounting: listing approved hours for %s: %w", userID, err)
	}
	regs, err := e.registrations.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/accounting: listing registrations for %s: %w", userID, err)
	}

	progress := e.derive(userID, approved, regs)

	prev, err := e.accounts.Get(ctx, userID)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		prev = nil
	case err != nil:
		return nil, fmt.Errorf("service/accounting: reading account for %s: %w", userID, err)
	}

	changed := false

	if prev == nil || prev.Coins != progress.Coins || prev.ApprovedHours != progress.Total {
		acct := &model.Account{UserID: userID, Coins: progress.Coins, ApprovedHours: progress.Total}
		if err := e.accounts.Save(ctx, acct); err != nil {
			return nil, fmt.Errorf("service/accounting: saving account for %s: %w", userID, err)
		}
		changed = prev != nil || progress.Total > 0
	}

	for _, reg := range regs {
		hours := progress.PerEvent[reg.EventID]
		if reg.HoursApproved == hours {
			continue
		}
		if err := e.registrations.UpdateHoursApproved(ctx, userID, reg.EventID, hours); err != nil {
			return nil, fmt.Errorf("service/accounting: refreshing hours for %s/%s: %w", userID, reg.EventID, err)
		}
		changed = true
	}

	unlocked, err := e.recordUnlocks(ctx, progress)
	if err != nil {
		return nil, err
	}

	if changed {
		e.logger.Info("progress recomputed",
			slog.String("user_id", userID),
			slog.Int("total", progress.Total),
			slog.Int("coins", progress.Coins),
		)
		if err := e.publisher.PublishProgress(ctx, *progress); err != nil {
			e.logger.Warn("publishing progress", slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	}
	for _, cert := range unlocked {
		e.logger.Info("certificate unlocked",
			slog.String("user_id", userID),
			slog.String("kind", string(cert.Kind)),
			slog.String("event_id", cert.EventID),
		)
		if err := e.publisher.PublishCertificate(ctx, cert); err != nil {
			e.logger.Warn("publishing certificate", slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	}

	return progress, nil
}

// recordUnlocks stores every certificate the progress qualifies for that is
// not yet on record and returns the ones this call recorded first.
func (e *AccountingEngine) recordUnlocks(ctx context.Context, progress *model.Progress) ([]notify.CertificateUnlocked, error) {
	eligible := e.eligibleUnlocks(progress)
	if len(eligible) == 0 {
		return nil, nil
	}

	recorded, err := e.certificates.ListByUser(ctx, progress.UserID)
	if err != nil {
		return nil, fmt.Errorf("service/accounting: listing certificates for %s: %w", progress.UserID, err)
	}
	seen := make(map[string]bool, len(recorded))
	for _, u := range recorded {
		seen[u.EventID] = true
	}

	var unlocked []notify.CertificateUnlocked
	for _, u := range eligible {
		if seen[u.EventID] {
			continue
		}
		first, err := e.certificates.Record(ctx, &u)
		if err != nil {
			return nil, fmt.Errorf("service/accounting: recording certificate for %s: %w", progress.UserID, err)
		}
		if !first {
			continue
		}
		cert := notify.CertificateUnlocked{UserID: u.UserID, Kind: notify.CertificateGlobal, Hours: u.Hours}
		if !u.Global() {
			cert.Kind = notify.CertificateEvent
			cert.EventID = u.EventID
		}
		unlocked = append(unlocked, cert)
	}
	return unlocked, nil
}

// eligibleUnlocks lists the certificates progress qualifies for, the global
// one first, then events by id.
func (e *AccountingEngine) eligibleUnlocks(progress *model.Progress) []model.CertificateUnlock {
	var unlocks []model.CertificateUnlock
	if progress.GlobalCertificate {
		unlocks = append(unlocks, model.CertificateUnlock{UserID: progress.UserID, Hours: progress.Total})
	}
	eventIDs := make([]string, 0, len(progress.EventCertificates))
	for id, ok := range progress.EventCertificates {
		if ok {
			eventIDs = append(eventIDs, id)
		}
	}
	sort.Strings(eventIDs)
	for _, id := range eventIDs {
		unlocks = append(unlocks, model.CertificateUnlock{UserID: progress.UserID, EventID: id, Hours: progress.PerEvent[id]})
	}
	return unlocks
}

// derive is the pure part of a recompute.
func (e *AccountingEngine) derive(userID string, approved []model.HourRequest, regs []model.Registration) *model.Progress {
	active := make(map[string]bool, len(regs))
	for _, reg := range regs {
		active[reg.EventID] = true
	}

	perEvent := make(map[string]int)
	total := 0
	for _, req := range approved {
		if req.Status != model.HourRequestApproved {
			continue
		}
		if e.policy == HoursExclude && !active[req.EventID] {
			continue
		}
		perEvent[req.EventID] += req.HoursRequested
		total += req.HoursRequested
	}

	certs := make(map[string]bool, len(perEvent))
	for eventID, hours := range perEvent {
		certs[eventID] = e.thresholds.EventCertificate(hours)
	}

	return &model.Progress{
		UserID:            userID,
		PerEvent:          perEvent,
		Total:             total,
		Coins:             model.CoinsFor(total),
		EventCertificates: certs,
		GlobalCertificate: e.thresholds.GlobalCertificate(total),
	}
}

// Certificate is the data printed on an unlocked certificate.
type Certificate struct {
	UserID      string                 `json:"userId"`
	DisplayName string                 `json:"displayName"`
	Kind        notify.CertificateKind `json:"kind"`
	EventID     string                 `json:"eventId,omitempty"`
	EventName   string                 `json:"eventName,omitempty"`
	Hours       int                    `json:"hours"`
	Required    int                    `json:"required"`
	IssuedAt    time.Time              `json:"issuedAt"`
}

// Certificates lists every certificate the progress qualifies for, the
// global one first, then events by id. IssuedAt is left for the caller to
// fill from the recorded unlocks.
func (e *AccountingEngine) Certificates(progress *model.Progress) []Certificate {
	certs := []Certificate{}
	for _, u := range e.eligibleUnlocks(progress) {
		cert := Certificate{
			UserID:   u.UserID,
			Kind:     notify.CertificateGlobal,
			Hours:    u.Hours,
			Required: e.thresholds.GlobalCertificateHours,
		}
		if !u.Global() {
			cert.Kind = notify.CertificateEvent
			cert.EventID = u.EventID
			cert.Required = e.thresholds.EventCertificateHours
		}
		certs = append(certs, cert)
	}
	return certs
}
