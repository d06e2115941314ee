package redis

import (
	"context"
	"fmt"

	"github.com/ogurasousui/staff-bot/internal/platform/config"
	goredis "github.com/redis/go-redis/v9"
)

// NewClient は redis 設定からクライアントを生成し疎通確認を行います。
// Redis が設定されていない場合は nil を返します。
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	return client, nil
}
