package transfer

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"earthgazer/internal/config"
)

// Policy is the exponential backoff applied to one file's copy.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Timeout      time.Duration
}

// PolicyFromConfig converts the transfer settings.
func PolicyFromConfig(cfg config.Transfer) Policy {
	return Policy{
		InitialDelay: seconds(cfg.InitialDelaySeconds),
		MaxDelay:     seconds(cfg.MaxDelaySeconds),
		Multiplier:   cfg.Multiplier,
		Timeout:      time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialDelay > 0 {
		b.InitialInterval = p.InitialDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	if p.Multiplier >= 1 {
		b.Multiplier = p.Multiplier
	}
	return b
}

func (p Policy) timeout() time.Duration {
	if p.Timeout <= 0 {
		return 20 * time.Minute
	}
	return p.Timeout
}
