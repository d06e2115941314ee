// Package notify は対象者への DM 通知をゲートウェイへ受け渡します。
package notify

import (
	"context"

	"github.com/ogurasousui/staff-bot/internal/core/employee"
	"github.com/rs/zerolog"
)

// Log は通知をログへ出力するだけの Notifier です。ゲートウェイと同一プロセスで動かす場合に使います。
type Log struct {
	logger zerolog.Logger
}

var _ employee.Notifier = (*Log)(nil)

// NewLog は Log を生成します。
func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

// Notify は通知内容をログに記録します。
func (l *Log) Notify(_ context.Context, recipientID string, notice employee.Notice) error {
	l.logger.Info().
		Str("event", "direct_notice").
		Str("recipient_id", recipientID).
		Str("title", notice.Title).
		Int("fields", len(notice.Fields)).
		Msg("direct notice queued")
	return nil
}
