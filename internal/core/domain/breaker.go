package domain

import "time"

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// BreakerSnapshot is the diagnostics view of one dependency breaker.
// Reads are eventually consistent; operational dashboards only.
type BreakerSnapshot struct {
	Name                string        `json:"name"`
	State               BreakerState  `json:"state"`
	ConsecutiveFailures uint32        `json:"consecutive_failures"`
	FailureThreshold    uint32        `json:"failure_threshold"`
	CooldownRemaining   time.Duration `json:"cooldown_remaining"`
}
