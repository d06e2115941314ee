package employee

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidID           = errors.New("employee: invalid id")
	ErrInvalidWarningCount = errors.New("employee: invalid warning count")
	ErrInvalidAmount       = errors.New("employee: invalid amount")
	ErrInvalidDate         = errors.New("employee: invalid date")
	ErrInvalidPosition     = errors.New("employee: invalid position")
	ErrInvalidReason       = errors.New("employee: invalid reason")
	ErrInvalidDuration     = errors.New("employee: invalid duration")
	ErrEmptyUpdate         = errors.New("employee: nothing to update")
	ErrEmployeeNotFound    = errors.New("employee: not found")
	ErrAlreadyEmployed     = errors.New("employee: already employed")
	ErrNoWarnings          = errors.New("employee: no warnings")
	ErrPermissionDenied    = errors.New("employee: permission denied")
	ErrOnCooldown          = errors.New("employee: command on cooldown")
)

// CooldownError はクールダウン中に拒否されたコマンドを表します。
type CooldownError struct {
	Command   string
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: %s retry in %s", ErrOnCooldown, e.Command, e.Remaining)
}

func (e *CooldownError) Unwrap() error {
	return ErrOnCooldown
}
