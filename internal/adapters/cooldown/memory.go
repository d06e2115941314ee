// Package cooldown はユーザーごと・コマンドごとのクールダウンを管理します。
// 状態は名簿とは別に保持され、永続化されません。
package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/ogurasousui/staff-bot/internal/core/employee"
)

const pruneInterval = time.Minute

// Memory はプロセス内のマップでクールダウンを管理します。
type Memory struct {
	mu        sync.Mutex
	now       func() time.Time
	expiries  map[string]time.Time
	lastPrune time.Time
}

var _ employee.Limiter = (*Memory)(nil)

// NewMemory は Memory を生成します。now が nil の場合は time.Now を使います。
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{now: now, expiries: make(map[string]time.Time)}
}

// Allow はクールダウン中であれば残り時間を返します。そうでなければ window の間ロックして 0 を返します。
func (m *Memory) Allow(_ context.Context, userID, command string, window time.Duration) (time.Duration, error) {
	if window <= 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.pruneLocked(now)

	k := key(userID, command)
	if expiry, ok := m.expiries[k]; ok && expiry.After(now) {
		return expiry.Sub(now), nil
	}
	m.expiries[k] = now.Add(window)
	return 0, nil
}

// Len は保持しているエントリ数を返します。
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.expiries)
}

func (m *Memory) pruneLocked(now time.Time) {
	if now.Sub(m.lastPrune) < pruneInterval {
		return
	}
	for k, expiry := range m.expiries {
		if !expiry.After(now) {
			delete(m.expiries, k)
		}
	}
	m.lastPrune = now
}

func key(userID, command string) string {
	return "cooldown:" + command + ":" + userID
}
