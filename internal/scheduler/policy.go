package scheduler

import (
	"errors"
	"time"

	"feedmirror/internal/types"
)

const minDelay = time.Second

// Policy maps the outcome of a job to the wait before the next one.
type Policy struct {
	Cooldown         time.Duration
	IncompleteDelay  time.Duration
	RemoteErrorDelay time.Duration
	UnexpectedDelay  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Cooldown:         60 * time.Second,
		IncompleteDelay:  60 * time.Second,
		RemoteErrorDelay: 65 * time.Second,
		UnexpectedDelay:  60 * time.Second,
	}
}

// Delay returns how long to wait after a job that ended with err. The
// result is never below one second.
func (p Policy) Delay(err error) time.Duration {
	var (
		cooldown   *types.CooldownError
		incomplete *types.ConfigIncompleteError
		remoteRate *types.RemoteRateLimitError
		auth       *types.AuthError
		forbidden  *types.ForbiddenError
		httpErr    *types.HTTPError
	)

	var d time.Duration
	switch {
	case err == nil:
		d = p.Cooldown
	case errors.As(err, &cooldown):
		d = time.Duration(cooldown.RemainingSeconds()) * time.Second
	case errors.As(err, &incomplete):
		d = p.IncompleteDelay
	case errors.As(err, &remoteRate):
		if remoteRate.RetryAfter > 0 {
			d = time.Duration(remoteRate.RetryAfter+1) * time.Second
		} else {
			d = p.RemoteErrorDelay
		}
	case errors.As(err, &auth), errors.As(err, &forbidden), errors.As(err, &httpErr):
		d = p.RemoteErrorDelay
	default:
		d = p.UnexpectedDelay
	}

	return max(minDelay, d)
}
