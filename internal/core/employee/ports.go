package employee

//go:generate mockgen -source=ports.go -destination=mocks/ports_mock.go -package=mocks

import (
	"context"
	"time"
)

// Notifier は対象メンバーへの DM 通知を配送します。
type Notifier interface {
	Notify(ctx context.Context, recipientID string, notice Notice) error
}

// Limiter はユーザー・コマンド単位のクールダウンを管理します。
type Limiter interface {
	// Allow は実行可能なら 0 を、クールダウン中なら残り時間を返します。
	Allow(ctx context.Context, userID, command string, window time.Duration) (time.Duration, error)
}
