package auth

import "time"

type CooldownConfig struct {
	// Initial is the rest after the first rate limit. Every further one
	// multiplies it, up to Max.
	Initial    time.Duration
	Max        time.Duration
	Multiplier int
	// Disable is how long a rejected key is left out.
	Disable time.Duration
}

func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{
		Initial:    time.Minute,
		Max:        time.Hour,
		Multiplier: 5,
		Disable:    24 * time.Hour,
	}
}

func (c CooldownConfig) duration(errorCount int) time.Duration {
	d := c.Initial
	for i := 1; i < errorCount; i++ {
		d *= time.Duration(c.Multiplier)
		if d > c.Max {
			return c.Max
		}
	}
	return d
}
