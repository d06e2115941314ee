//go:build integration

package postgres

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ogurasousui/staff-bot/internal/core/employee"
	pgdb "github.com/ogurasousui/staff-bot/internal/platform/db/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const migrationsDir = "../../../../assets/migrations"

type stubClock struct {
	now time.Time
}

func (s stubClock) Now() time.Time {
	return s.now
}

func newIntegrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("staffbot"),
		tcpostgres.WithUsername("staffbot"),
		tcpostgres.WithPassword("staffbot"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, applyMigrations(dsn, migrationsDir))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func applyMigrations(dsn, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	m, err := migrate.New("file://"+filepath.ToSlash(abs), dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func TestEmployeeRepositoryIntegration(t *testing.T) {
	pool := newIntegrationPool(t)
	repo := NewEmployeeRepository(pool, 0)
	ctx := context.Background()

	require.NoError(t, repo.AddEmployee(ctx, "0042", "Alice", "Cashier", "01.01.2024"))
	require.NoError(t, repo.AddEmployee(ctx, "7", "Bob", "Cook", "02.01.2024"))

	found, err := repo.GetEmployee(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Alice", found.Name)
	assert.True(t, found.Active)

	position := "Manager"
	require.NoError(t, repo.UpdateEmployee(ctx, "42", employee.UpdateFields{Position: &position}))

	all, err := repo.GetAllEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "7", all[0].ID)
	assert.Equal(t, "Manager", all[1].Position)
	assert.Equal(t, "01.01.2024", all[1].JoinDate)

	require.NoError(t, repo.SetWarnings(ctx, "42", 2))
	count, err := repo.GetWarnings(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, repo.SetWarnings(ctx, "42", 0))
	count, err = repo.GetWarnings(ctx, "42")
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, repo.RemoveEmployee(ctx, "7"))
	all, err = repo.GetAllEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "42", all[0].ID)
}

func TestEmployeeServiceIntegration_WarnEscalation(t *testing.T) {
	pool := newIntegrationPool(t)
	repo := NewEmployeeRepository(pool, 0)
	tx := pgdb.NewTransactionManager(pool)
	now := time.Date(2024, 5, 20, 9, 30, 0, 0, time.UTC)
	svc := employee.NewService(repo, stubClock{now: now}, tx, employee.Policy{
		AllowedRoleIDs: []string{"hr"},
		DismissRoleIDs: []string{"staff"},
	})
	ctx := context.Background()

	actor := employee.Actor{ID: "1", DisplayName: "Manager", RoleIDs: []string{"hr"}}
	target := employee.Target{ID: "42", DisplayName: "Alice"}

	_, err := svc.Hire(ctx, employee.HireInput{Actor: actor, Target: target, Position: "Cashier", JoinDate: "01.01.2024"})
	require.NoError(t, err)

	for i := 1; i < employee.DefaultMaxWarnings; i++ {
		out, err := svc.Warn(ctx, employee.WarnInput{Actor: actor, Target: target, Reason: "late"})
		require.NoError(t, err)
		assert.Equal(t, i, out.Warnings)
		assert.Empty(t, out.RevokeRoleIDs)
	}

	out, err := svc.Warn(ctx, employee.WarnInput{Actor: actor, Target: target, Reason: "late again"})
	require.NoError(t, err)
	assert.Equal(t, []string{"staff"}, out.RevokeRoleIDs)

	count, err := repo.GetWarnings(ctx, "42")
	require.NoError(t, err)
	assert.Zero(t, count)

	all, err := repo.GetAllEmployees(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
