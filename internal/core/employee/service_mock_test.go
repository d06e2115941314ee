package employee_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogurasousui/staff-bot/internal/adapters/repository/jsonfile"
	"github.com/ogurasousui/staff-bot/internal/core/employee"
	"github.com/ogurasousui/staff-bot/internal/core/employee/mocks"
	"go.uber.org/mock/gomock"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func newStoreService(t *testing.T, opts ...employee.Option) (*employee.Service, *jsonfile.Store) {
	t.Helper()

	store, err := jsonfile.Open(filepath.Join(t.TempDir(), "employees.json"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	policy := employee.Policy{
		AllowedRoleIDs: []string{"hr"},
		DismissRoleIDs: []string{"staff", "intern"},
		Cooldowns:      map[employee.Command]time.Duration{employee.CommandWarn: 30 * time.Second},
	}
	clock := fixedClock(time.Date(2024, 5, 20, 9, 30, 0, 0, time.UTC))
	return employee.NewService(store, clock, nil, policy, opts...), store
}

func TestService_WithMocks_WarnEscalation(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	limiter := mocks.NewMockLimiter(ctrl)

	svc, store := newStoreService(t, employee.WithNotifier(notifier), employee.WithLimiter(limiter))
	ctx := context.Background()
	actor := employee.Actor{ID: "1", DisplayName: "Boss", RoleIDs: []string{"hr"}}
	target := employee.Target{ID: "42", DisplayName: "Alice"}

	limiter.EXPECT().Allow(gomock.Any(), "1", "hire", employee.DefaultCooldown).Return(time.Duration(0), nil)
	limiter.EXPECT().Allow(gomock.Any(), "1", "warn", 30*time.Second).Return(time.Duration(0), nil).Times(3)
	// 採用 1 通、警告 3 通、自動解雇 1 通
	notifier.EXPECT().Notify(gomock.Any(), "42", gomock.Any()).Return(nil).Times(5)

	if _, err := svc.Hire(ctx, employee.HireInput{Actor: actor, Target: target, Position: "Clerk", JoinDate: "01.02.2024"}); err != nil {
		t.Fatalf("Hire returned error: %v", err)
	}

	var out *employee.Outcome
	for i := 0; i < 3; i++ {
		var err error
		out, err = svc.Warn(ctx, employee.WarnInput{Actor: actor, Target: target, Reason: "late"})
		if err != nil {
			t.Fatalf("Warn #%d returned error: %v", i+1, err)
		}
	}

	if len(out.Notices) != 2 || len(out.RevokeRoleIDs) != 2 {
		t.Fatalf("expected automatic dismissal, got %+v", out)
	}

	got, err := store.GetEmployee(ctx, "42")
	if err != nil {
		t.Fatalf("GetEmployee returned error: %v", err)
	}
	if got.Active {
		t.Fatal("expected employee to be inactive")
	}
	warnings, err := store.GetWarnings(ctx, "42")
	if err != nil || warnings != 0 {
		t.Fatalf("expected warnings cleared, got %d (%v)", warnings, err)
	}
}

func TestService_WithMocks_CooldownBlocksBeforeStore(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	limiter := mocks.NewMockLimiter(ctrl)

	svc, store := newStoreService(t, employee.WithNotifier(notifier), employee.WithLimiter(limiter))
	actor := employee.Actor{ID: "1", Administrator: true}

	limiter.EXPECT().Allow(gomock.Any(), "1", "dismiss", employee.DefaultCooldown).Return(2*time.Second, nil)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	_, err := svc.Dismiss(context.Background(), employee.DismissInput{
		Actor:  actor,
		Target: employee.Target{ID: "42"},
		Reason: "budget",
	})

	var cooldownErr *employee.CooldownError
	if !errors.As(err, &cooldownErr) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	if cooldownErr.Command != "dismiss" || cooldownErr.Remaining != 2*time.Second {
		t.Fatalf("unexpected cooldown error %+v", cooldownErr)
	}

	if _, err := store.GetEmployee(context.Background(), "42"); !errors.Is(err, employee.ErrEmployeeNotFound) {
		t.Fatalf("expected store to be untouched, got %v", err)
	}
}
