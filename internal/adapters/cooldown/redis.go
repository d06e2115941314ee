package cooldown

import (
	"context"
	"fmt"
	"time"

	"github.com/ogurasousui/staff-bot/internal/core/employee"
	"github.com/redis/go-redis/v9"
)

// Redis は複数プロセスでクールダウンを共有するための実装です。
// キーの存在がロックを表し、残り時間は PTTL から求めます。
type Redis struct {
	client redis.Cmdable
}

var _ employee.Limiter = (*Redis)(nil)

// NewRedis は Redis を生成します。
func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

// Allow は SET NX PX でロックを取得します。取得できなければ残り時間を返します。
func (r *Redis) Allow(ctx context.Context, userID, command string, window time.Duration) (time.Duration, error) {
	if window <= 0 {
		return 0, nil
	}

	k := key(userID, command)
	acquired, err := r.client.SetNX(ctx, k, "1", window).Result()
	if err != nil {
		return 0, fmt.Errorf("cooldown: set %s: %w", k, err)
	}
	if acquired {
		return 0, nil
	}

	remaining, err := r.client.PTTL(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("cooldown: pttl %s: %w", k, err)
	}
	// 期限切れ直後や TTL なしのキーはロックしていないものとして扱う
	if remaining <= 0 {
		return 0, nil
	}
	return remaining, nil
}
