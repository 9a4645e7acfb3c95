package types

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      Detail
		retryable bool
	}{
		{"nil", nil, Detail{Kind: KindNone}, true},
		{"cooldown", &CooldownError{Remaining: 1500 * time.Millisecond}, Detail{Kind: KindCooldown, Hint: 2}, true},
		{"wrapped auth", fmt.Errorf("fetch: %w", &AuthError{Status: 401}), Detail{Kind: KindAuth, Hint: 401}, false},
		{"forbidden", &ForbiddenError{Status: 403}, Detail{Kind: KindForbidden, Hint: 403}, false},
		{"rate limit", &RemoteRateLimitError{RetryAfter: 12}, Detail{Kind: KindRemoteRateLimit, Hint: 12}, true},
		{"http", &HTTPError{Status: 502}, Detail{Kind: KindHTTP, Hint: 502}, true},
		{"incomplete", &ConfigIncompleteError{Missing: []string{"api_key"}}, Detail{Kind: KindConfigIncomplete}, false},
		{"platform", &PlatformError{Op: "send", Key: "k", Err: errors.New("boom")}, Detail{Kind: KindPlatform}, true},
		{"other", errors.New("boom"), Detail{Kind: KindUnexpected}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe(tt.err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.retryable, got.Retryable())
		})
	}
}

func TestCooldownRemainingSeconds(t *testing.T) {
	assert.Equal(t, 1, (&CooldownError{}).RemainingSeconds())
	assert.Equal(t, 1, (&CooldownError{Remaining: 10 * time.Millisecond}).RemainingSeconds())
	assert.Equal(t, 60, (&CooldownError{Remaining: time.Minute}).RemainingSeconds())
	assert.Equal(t, 31, (&CooldownError{Remaining: 30*time.Second + time.Nanosecond}).RemainingSeconds())
	assert.True(t, IsCooldown(fmt.Errorf("wrap: %w", &CooldownError{})))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "429: remote rate limit", (&RemoteRateLimitError{}).Error())
	assert.Equal(t, "429: remote rate limit (retry_after=5s)", (&RemoteRateLimitError{RetryAfter: 5}).Error())
	assert.Equal(t, "http 500", (&HTTPError{Status: 500}).Error())
	assert.Equal(t, "http 500: oops", (&HTTPError{Status: 500, Body: "oops"}).Error())

	inner := errors.New("gone")
	perr := &PlatformError{Op: "edit", Key: "url:x", Err: inner}
	assert.ErrorIs(t, perr, inner)
}

func TestMappingSplitJoin(t *testing.T) {
	m := Mapping{
		"a": {MessageID: "1", Signature: "s1"},
		"b": {MessageID: "2", Signature: "s2"},
	}

	messages, signatures := m.Split()
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, messages)
	assert.Equal(t, map[string]string{"a": "s1", "b": "s2"}, signatures)
	assert.Equal(t, m, JoinMapping(messages, signatures))
	assert.Equal(t, []string{"a", "b"}, m.Keys())
}

func TestJoinMappingTolerance(t *testing.T) {
	got := JoinMapping(
		map[string]string{"a": "1", "b": "", "c": "3"},
		map[string]string{"a": "s1", "b": "s2", "orphan": "s9"},
	)
	assert.Equal(t, Mapping{
		"a": {MessageID: "1", Signature: "s1"},
		"c": {MessageID: "3"},
	}, got)
}

func TestScopeString(t *testing.T) {
	assert.Equal(t, "a/1", Scope{Collection: "a", ChannelID: "1"}.String())
}
