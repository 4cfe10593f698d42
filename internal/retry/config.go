package retry

import "time"

type Config struct {
	// MaxAttempts counts retries after the first call, so the operation runs
	// at most MaxAttempts+1 times.
	MaxAttempts       int           `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay" yaml:"initial_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
	MaxDelay          time.Duration `json:"max_delay" yaml:"max_delay"`
}

func Quick() Config {
	return Config{
		MaxAttempts:       2,
		InitialDelay:      50 * time.Millisecond,
		BackoffMultiplier: 1.5,
		MaxDelay:          time.Second,
	}
}

func Default() Config {
	return Config{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          5 * time.Second,
	}
}

func Persistent() Config {
	return Config{
		MaxAttempts:       5,
		InitialDelay:      200 * time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxDelay:          10 * time.Second,
	}
}

func (c Config) nextDelay(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * c.BackoffMultiplier)
	if next > c.MaxDelay {
		return c.MaxDelay
	}
	return next
}
