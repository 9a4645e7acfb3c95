package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNotFound is matched by platform errors reporting a missing message or
// channel.
var ErrNotFound = errors.New("not found")

// CooldownError is returned when the global request budget is spent. No
// request was made.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("global cooldown active: %ds remaining", e.RemainingSeconds())
}

// RemainingSeconds rounds up so callers never wake before the window opens.
func (e *CooldownError) RemainingSeconds() int {
	secs := int(math.Ceil(e.Remaining.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%d: invalid or missing API key", e.Status)
}

type ForbiddenError struct {
	Status int
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("%d: origin blocked", e.Status)
}

// RemoteRateLimitError reports remote throttling. RetryAfter is zero when
// the remote gave no hint.
type RemoteRateLimitError struct {
	RetryAfter int
}

func (e *RemoteRateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("429: remote rate limit (retry_after=%ds)", e.RetryAfter)
	}
	return "429: remote rate limit"
}

type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d", e.Status)
	}
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ConfigIncompleteError is returned before any request when the feed
// cannot be addressed.
type ConfigIncompleteError struct {
	Missing []string
}

func (e *ConfigIncompleteError) Error() string {
	return fmt.Sprintf("configuration incomplete: missing %v", e.Missing)
}

// PlatformError wraps a failed messaging-platform call for one tracked key.
type PlatformError struct {
	Op  string
	Key string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform %s failed for %q: %v", e.Op, e.Key, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

func IsCooldown(err error) bool {
	var ce *CooldownError
	return errors.As(err, &ce)
}

// Kind names an error class for callers rendering human messages.
type Kind string

const (
	KindNone             Kind = ""
	KindCooldown         Kind = "cooldown"
	KindAuth             Kind = "auth"
	KindForbidden        Kind = "forbidden"
	KindRemoteRateLimit  Kind = "remote_rate_limit"
	KindHTTP             Kind = "http"
	KindConfigIncomplete Kind = "config_incomplete"
	KindPlatform         Kind = "platform"
	KindUnexpected       Kind = "unexpected"
)

// Detail is the structured view of an error: its kind plus an optional
// numeric hint (seconds for cooldowns and rate limits, status for HTTP).
type Detail struct {
	Kind Kind
	Hint int
}

func Describe(err error) Detail {
	if err == nil {
		return Detail{Kind: KindNone}
	}

	var (
		cooldown   *CooldownError
		auth       *AuthError
		forbidden  *ForbiddenError
		remoteRate *RemoteRateLimitError
		httpErr    *HTTPError
		incomplete *ConfigIncompleteError
		platform   *PlatformError
	)

	switch {
	case errors.As(err, &cooldown):
		return Detail{Kind: KindCooldown, Hint: cooldown.RemainingSeconds()}
	case errors.As(err, &auth):
		return Detail{Kind: KindAuth, Hint: auth.Status}
	case errors.As(err, &forbidden):
		return Detail{Kind: KindForbidden, Hint: forbidden.Status}
	case errors.As(err, &remoteRate):
		return Detail{Kind: KindRemoteRateLimit, Hint: remoteRate.RetryAfter}
	case errors.As(err, &httpErr):
		return Detail{Kind: KindHTTP, Hint: httpErr.Status}
	case errors.As(err, &incomplete):
		return Detail{Kind: KindConfigIncomplete}
	case errors.As(err, &platform):
		return Detail{Kind: KindPlatform}
	default:
		return Detail{Kind: KindUnexpected}
	}
}

// Retryable is false for errors that will not heal without operator action.
func (d Detail) Retryable() bool {
	switch d.Kind {
	case KindAuth, KindForbidden, KindConfigIncomplete:
		return false
	default:
		return true
	}
}
