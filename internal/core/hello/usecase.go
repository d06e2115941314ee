package hello

import "context"

// PingMessage は稼働確認コマンドへの応答です。
const PingMessage = "✅ Бот работает"

// Greeter は稼働確認の応答を生成するユースケースです。
type Greeter interface {
	SayHello(ctx context.Context) (string, error)
}

// Service は Greeter ユースケースのデフォルト実装です。
type Service struct{}

// NewService は Greeter ユースケースの新しいインスタンスを返します。
func NewService() *Service {
	return &Service{}
}

// SayHello は稼働中であることを示すメッセージを返します。
func (s *Service) SayHello(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return PingMessage, nil
}
