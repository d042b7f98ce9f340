package identity

import (
	"fmt"
	"math"
	"time"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutWindow    = 15 * time.Minute
)

// LockoutPolicy tracks failed credential checks on an account. It only
// mutates the account value and reports which columns changed; persisting
// them is the caller's job, inside the login transaction.
//
// A lockout that has expired is skipped at check time but the counters are
// left in place until the next successful login.
type LockoutPolicy struct {
	Threshold int
	Window    time.Duration
	Now       func() time.Time
}

// NewLockoutPolicy builds a policy from config, falling back to defaults for
// non positive values.
func NewLockoutPolicy(cfg LockoutConfig) LockoutPolicy {
	p := LockoutPolicy{
		Threshold: cfg.Threshold,
		Window:    cfg.Window,
		Now:       time.Now,
	}
	if p.Threshold <= 0 {
		p.Threshold = DefaultLockoutThreshold
	}
	if p.Window <= 0 {
		p.Window = DefaultLockoutWindow
	}
	return p
}

func (p LockoutPolicy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// IsLocked reports whether a lockout is in effect and how long it has left.
func (p LockoutPolicy) IsLocked(account *Account) (bool, time.Duration) {
	if account == nil || !account.LockoutEnabled || account.LockoutEnd == nil {
		return false, 0
	}
	remaining := account.LockoutEnd.Sub(p.now())
	if remaining <= 0 {
		return false, 0
	}
	return true, remaining
}

// Check rejects with ErrLockedOut while a lockout is in effect. The message
// carries the remaining whole minutes, rounded up.
func (p LockoutPolicy) Check(account *Account) error {
	locked, remaining := p.IsLocked(account)
	if !locked {
		return nil
	}
	minutes := RemainingMinutes(remaining)
	return NewError(ErrLockedOut, CodeAccountLocked, fmt.Sprintf(MsgAccountLocked, minutes),
		"account_id", account.ID,
		"remaining_minutes", minutes,
	)
}

// RegisterFailure records a failed credential check. It returns the columns
// to persist (nil when lockout is disabled) and whether this failure started
// a lockout.
func (p LockoutPolicy) RegisterFailure(account *Account) ([]string, bool) {
	if account == nil || !account.LockoutEnabled {
		return nil, false
	}

	if account.AccessFailedCount < 0 {
		account.AccessFailedCount = 0
	}
	account.AccessFailedCount++

	if account.AccessFailedCount >= p.Threshold {
		end := p.now().Add(p.Window)
		account.LockoutEnd = &end
		return []string{"access_failed_count", "lockout_end"}, true
	}
	return []string{"access_failed_count"}, false
}

// RegisterSuccess clears the failure counter and lockout end. It returns nil
// when there is nothing to reset.
func (p LockoutPolicy) RegisterSuccess(account *Account) []string {
	if account == nil || (account.AccessFailedCount == 0 && account.LockoutEnd == nil) {
		return nil
	}
	account.AccessFailedCount = 0
	account.LockoutEnd = nil
	return []string{"access_failed_count", "lockout_end"}
}

// RemainingMinutes rounds d up to whole minutes.
func RemainingMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}
