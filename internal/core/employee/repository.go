package employee

import "context"

// Repository は社員名簿と警告数の永続化の抽象です。
//
// 警告数は正の値のときだけ保持され、0 を設定するとエントリ自体が削除されます。
type Repository interface {
	AddEmployee(ctx context.Context, id, name, position, joinDate string) error
	UpdateEmployee(ctx context.Context, id string, fields UpdateFields) error
	RemoveEmployee(ctx context.Context, id string) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	GetAllEmployees(ctx context.Context) ([]*Employee, error)
	SetWarnings(ctx context.Context, id string, count int) error
	GetWarnings(ctx context.Context, id string) (int, error)
	RemoveWarnings(ctx context.Context, id string) error
}
