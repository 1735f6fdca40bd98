package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sakif/servicehours/internal/apperror"
	"github.com/sakif/servicehours/internal/model"
)

func TestRegistrationCreate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	reg := &model.Registration{UserID: "u1", EventID: "e1", EventName: "Food bank"}
	if err := db.Registrations().Create(ctx, reg, 0); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if reg.ID != "u1_e1" {
		t.Errorf("ID = %q, want %q", reg.ID, "u1_e1")
	}
	if reg.Status != model.RegistrationRegistered {
		t.Errorf("Status = %q, want %q", reg.Status, model.RegistrationRegistered)
	}

	found, err := db.Registrations().Get(ctx, "u1", "e1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found.EventName != "Food bank" {
		t.Errorf("EventName = %q, want %q", found.EventName, "Food bank")
	}
	if found.HoursApproved != 0 {
		t.Errorf("HoursApproved = %d, want 0", found.HoursApproved)
	}
}

func TestRegistrationCreate_Duplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Registrations().Create(ctx, &model.Registration{UserID: "u1", EventID: "e1"}, 0); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}

	err := db.Registrations().Create(ctx, &model.Registration{UserID: "u1", EventID: "e1"}, 0)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("second Create() error = %v, want ErrConflict", err)
	}
}

func TestRegistrationDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Registrations().Create(ctx, &model.Registration{UserID: "u1", EventID: "e1"}, 0); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := db.Registrations().Delete(ctx, "u1", "e1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	err := db.Registrations().Delete(ctx, "u1", "e1")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestRegistrationList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	regs := db.Registrations()

	for _, r := range []model.Registration{
		{UserID: "u1", EventID: "e1"},
		{UserID: "u1", EventID: "e2"},
		{UserID: "u2", EventID: "e1"},
	} {
		if err := regs.Create(ctx, &r, 0); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	list, err := regs.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(list) != 2 {
		t.Errorf("len(ListByUser) = %d, want 2", len(list))
	}
}

func TestRegistrationCreate_Limit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	regs := db.Registrations()

	for _, user := range []string{"u1", "u2"} {
		if err := regs.Create(ctx, &model.Registration{UserID: user, EventID: "e1"}, 2); err != nil {
			t.Fatalf("Create(%s) error = %v", user, err)
		}
	}

	err := regs.Create(ctx, &model.Registration{UserID: "u3", EventID: "e1"}, 2)
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("Create() on a full event error = %v, want ErrConflict", err)
	}
	if _, err := regs.Get(ctx, "u3", "e1"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("rejected registration was stored: %v", err)
	}

	// the limit is per event
	if err := regs.Create(ctx, &model.Registration{UserID: "u3", EventID: "e2"}, 2); err != nil {
		t.Errorf("Create() on another event error = %v", err)
	}
}

func TestRegistrationCreate_LimitUnderConcurrency(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	regs := db.Registrations()

	const limit, attempts = 3, 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := regs.Create(ctx, &model.Registration{UserID: fmt.Sprintf("u%d", i), EventID: "e1"}, limit)
			if err != nil && !errors.Is(err, apperror.ErrConflict) {
				t.Errorf("Create() error = %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if succeeded != limit {
		t.Errorf("%d registrations succeeded, want %d", succeeded, limit)
	}
}

func TestRegistrationUpdateHoursApproved(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Registrations().Create(ctx, &model.Registration{UserID: "u1", EventID: "e1"}, 0); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := db.Registrations().UpdateHoursApproved(ctx, "u1", "e1", 42); err != nil {
		t.Fatalf("UpdateHoursApproved() error = %v", err)
	}

	found, err := db.Registrations().Get(ctx, "u1", "e1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found.HoursApproved != 42 {
		t.Errorf("HoursApproved = %d, want 42", found.HoursApproved)
	}

	// no registration row: silently nothing to refresh
	if err := db.Registrations().UpdateHoursApproved(ctx, "u1", "gone", 5); err != nil {
		t.Errorf("UpdateHoursApproved() on missing row error = %v", err)
	}
}
