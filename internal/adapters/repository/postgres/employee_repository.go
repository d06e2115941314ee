package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/staff-bot/internal/core/employee"
	pgdb "github.com/ogurasousui/staff-bot/internal/platform/db/postgres"
)

const employeeCheckViolationCode = "23514"

// EmployeeRepository は PostgreSQL を利用した名簿と警告数の永続化の実装です。
type EmployeeRepository struct {
	pool           pgdb.Queryer
	maxFieldLength int
}

// NewEmployeeRepository は EmployeeRepository を生成します。
func NewEmployeeRepository(pool pgdb.Queryer, maxFieldLength int) *EmployeeRepository {
	return &EmployeeRepository{pool: pool, maxFieldLength: maxFieldLength}
}

var _ employee.Repository = (*EmployeeRepository)(nil)

// AddEmployee は社員を有効な状態で登録します。既存のレコードは上書きされます。
func (r *EmployeeRepository) AddEmployee(ctx context.Context, id, name, position, joinDate string) error {
	key, err := employee.NormalizeID(id)
	if err != nil {
		return err
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	_, err = exec.Exec(ctx, `
        INSERT INTO employees (id, name, position, join_date, active)
        VALUES ($1, $2, $3, $4, TRUE)
        ON CONFLICT (id) DO UPDATE
           SET name = EXCLUDED.name,
               position = EXCLUDED.position,
               join_date = EXCLUDED.join_date,
               active = TRUE,
               updated_at = NOW()
    `,
		key,
		employee.Sanitize(name, r.maxFieldLength),
		employee.Sanitize(position, r.maxFieldLength),
		employee.Sanitize(joinDate, r.maxFieldLength),
	)
	return translateEmployeePgError(err)
}

// UpdateEmployee は指定された項目だけを既存レコードへ反映します。レコードがなければ何もしません。
func (r *EmployeeRepository) UpdateEmployee(ctx context.Context, id string, fields employee.UpdateFields) error {
	key, err := employee.NormalizeID(id)
	if err != nil {
		return err
	}
	if fields.IsEmpty() {
		return nil
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	_, err = exec.Exec(ctx, `
        UPDATE employees
           SET position = COALESCE($2, position),
               join_date = COALESCE($3, join_date),
               updated_at = NOW()
         WHERE id = $1
    `,
		key,
		r.nullableField(fields.Position),
		r.nullableField(fields.JoinDate),
	)
	return translateEmployeePgError(err)
}

// RemoveEmployee はレコードを無効化します。
func (r *EmployeeRepository) RemoveEmployee(ctx context.Context, id string) error {
	key, err := employee.NormalizeID(id)
	if err != nil {
		return err
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	_, err = exec.Exec(ctx, `UPDATE employees SET active = FALSE, updated_at = NOW() WHERE id = $1 AND active`, key)
	return translateEmployeePgError(err)
}

// GetEmployee は ID で社員を取得します。
func (r *EmployeeRepository) GetEmployee(ctx context.Context, id string) (*employee.Employee, error) {
	key, err := employee.NormalizeID(id)
	if err != nil {
		return nil, err
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT id, name, position, join_date, active
          FROM employees
         WHERE id = $1
    `, key)

	found, err := scanEmployee(row)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	return found, nil
}

// GetAllEmployees は有効な社員を ID 順に返します。
func (r *EmployeeRepository) GetAllEmployees(ctx context.Context) ([]*employee.Employee, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        SELECT id, name, position, join_date, active
          FROM employees
         WHERE active
         ORDER BY LENGTH(id), id
    `)
	if err != nil {
		return nil, translateEmployeePgError(err)
	}
	defer rows.Close()

	employees := make([]*employee.Employee, 0)
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, translateEmployeePgError(err)
		}
		employees = append(employees, emp)
	}
	if err := rows.Err(); err != nil {
		return nil, translateEmployeePgError(err)
	}
	return employees, nil
}

// SetWarnings は警告数を上書きします。0 の場合は行を削除します。
func (r *EmployeeRepository) SetWarnings(ctx context.Context, id string, count int) error {
	key, err := employee.NormalizeID(id)
	if err != nil {
		return err
	}
	if count < 0 {
		return employee.ErrInvalidWarningCount
	}
	if count == 0 {
		return r.RemoveWarnings(ctx, key)
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	_, err = exec.Exec(ctx, `
        INSERT INTO employee_warnings (employee_id, count)
        VALUES ($1, $2)
        ON CONFLICT (employee_id) DO UPDATE
           SET count = EXCLUDED.count,
               updated_at = NOW()
    `, key, count)
	return translateEmployeePgError(err)
}

// GetWarnings は警告数を返します。行がなければ 0 です。
func (r *EmployeeRepository) GetWarnings(ctx context.Context, id string) (int, error) {
	key, err := employee.NormalizeID(id)
	if err != nil {
		return 0, err
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	var count int
	if err := exec.QueryRow(ctx, `SELECT count FROM employee_warnings WHERE employee_id = $1`, key).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, translateEmployeePgError(err)
	}
	return count, nil
}

// RemoveWarnings は警告の行を削除します。
func (r *EmployeeRepository) RemoveWarnings(ctx context.Context, id string) error {
	key, err := employee.NormalizeID(id)
	if err != nil {
		return err
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	_, err = exec.Exec(ctx, `DELETE FROM employee_warnings WHERE employee_id = $1`, key)
	return translateEmployeePgError(err)
}

func (r *EmployeeRepository) nullableField(value *string) any {
	if value == nil {
		return nil
	}
	return employee.Sanitize(*value, r.maxFieldLength)
}

func scanEmployee(row pgx.Row) (*employee.Employee, error) {
	var emp employee.Employee
	if err := row.Scan(&emp.ID, &emp.Name, &emp.Position, &emp.JoinDate, &emp.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, employee.ErrEmployeeNotFound
		}
		return nil, err
	}
	return &emp, nil
}

func translateEmployeePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return employee.ErrEmployeeNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == employeeCheckViolationCode {
		return employee.ErrInvalidWarningCount
	}
	return err
}
