package resilience

import "time"

type Config struct {
	FailureThreshold uint32
	Cooldown         time.Duration

	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
}

// DefaultRetrievalConfig tolerates more failures with a shorter
// cool-down: search hiccups are frequent and cheap to probe.
func DefaultRetrievalConfig() Config {
	return Config{
		FailureThreshold:    5,
		Cooldown:            30 * time.Second,
		RetryMaxAttempts:    2,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,
	}
}

// DefaultGenerationConfig trips faster and cools down longer: completion
// calls are expensive and a struggling model endpoint needs room to
// recover. No in-place retries; the pipeline has its own regeneration
// pass.
func DefaultGenerationConfig() Config {
	return Config{
		FailureThreshold:    3,
		Cooldown:            60 * time.Second,
		RetryMaxAttempts:    1,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultRetrievalConfig()

	if out.FailureThreshold == 0 {
		out.FailureThreshold = def.FailureThreshold
	}
	if out.Cooldown <= 0 {
		out.Cooldown = def.Cooldown
	}
	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = 1
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	return out
}
