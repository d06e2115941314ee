package employee

import (
	"slices"
	"time"
)

const (
	DefaultMaxWarnings = 3
	DefaultCooldown    = 5 * time.Second
)

// Command は HR コマンドの識別子です。クールダウンのキーにも使われます。
type Command string

const (
	CommandHire     Command = "hire"
	CommandWarn     Command = "warn"
	CommandUnwarn   Command = "unwarn"
	CommandSalary   Command = "salary"
	CommandDismiss  Command = "dismiss"
	CommandVacation Command = "vacation"
	CommandUpdate   Command = "update"
	CommandInfo     Command = "info"
	CommandRoster   Command = "roster"
	CommandPing     Command = "ping"
)

// Policy は権限とクールダウン、警告上限の設定です。
type Policy struct {
	// AllowedRoleIDs のいずれかを持つメンバー、または管理者だけが変更系コマンドを実行できます。
	AllowedRoleIDs []string
	// DismissRoleIDs は解雇時にゲートウェイが剥奪するロールです。
	DismissRoleIDs  []string
	MaxWarnings     int
	MaxFieldLength  int
	DefaultCooldown time.Duration
	Cooldowns       map[Command]time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxWarnings <= 0 {
		p.MaxWarnings = DefaultMaxWarnings
	}
	if p.MaxFieldLength <= 0 {
		p.MaxFieldLength = DefaultMaxFieldLength
	}
	if p.DefaultCooldown <= 0 {
		p.DefaultCooldown = DefaultCooldown
	}
	return p
}

// Authorized は実行者が変更系コマンドを実行できるかを判定します。
func (p Policy) Authorized(actor Actor) bool {
	if actor.Administrator {
		return true
	}
	for _, roleID := range actor.RoleIDs {
		if slices.Contains(p.AllowedRoleIDs, roleID) {
			return true
		}
	}
	return false
}

// Cooldown はコマンドのクールダウン時間を返します。
func (p Policy) Cooldown(cmd Command) time.Duration {
	if d, ok := p.Cooldowns[cmd]; ok && d > 0 {
		return d
	}
	return p.DefaultCooldown
}
