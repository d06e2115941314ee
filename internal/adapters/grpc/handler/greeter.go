package handler

import (
	"context"

	"github.com/ogurasousui/staff-bot/internal/core/hello"
)

// ping は稼働確認コマンドに応答します。権限は不要です。
func ping(ctx context.Context, greeter hello.Greeter) (*commandResponse, error) {
	message, err := greeter.SayHello(ctx)
	if err != nil {
		return nil, err
	}
	return &commandResponse{Content: message}, nil
}
