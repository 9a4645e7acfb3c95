package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"feedmirror/internal/clock"
	"feedmirror/internal/types"
)

func TestPolicyDelay(t *testing.T) {
	policy := DefaultPolicy()

	tests := []struct {
		name string
		err  error
		want time.Duration
	}{
		{"success", nil, 60 * time.Second},
		{"local cooldown", &types.CooldownError{Remaining: 12300 * time.Millisecond}, 13 * time.Second},
		{"cooldown almost over", &types.CooldownError{Remaining: time.Millisecond}, time.Second},
		{"wrapped cooldown", fmt.Errorf("job: %w", &types.CooldownError{Remaining: 5 * time.Second}), 5 * time.Second},
		{"config incomplete", &types.ConfigIncompleteError{Missing: []string{"api_key"}}, 60 * time.Second},
		{"remote rate limit with hint", &types.RemoteRateLimitError{RetryAfter: 30}, 31 * time.Second},
		{"remote rate limit without hint", &types.RemoteRateLimitError{}, 65 * time.Second},
		{"auth", &types.AuthError{Status: 401}, 65 * time.Second},
		{"http", &types.HTTPError{Status: 502}, 65 * time.Second},
		{"unexpected", errors.New("disk full"), 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Delay(tt.err))
		})
	}
}

func TestPolicyDelayFloor(t *testing.T) {
	assert.Equal(t, time.Second, Policy{}.Delay(nil))
}

type staticPlan struct {
	jobs []types.Scope
	idle time.Duration
}

func (p *staticPlan) Jobs() []types.Scope { return p.jobs }
func (p *staticPlan) Policy() Policy { return DefaultPolicy() }
func (p *staticPlan) IdleInterval() time.Duration { return p.idle }

type scriptedRunner struct {
	results []error
	ran     []types.Scope
}

func (r *scriptedRunner) RunJob(_ context.Context, scope types.Scope) error {
	r.ran = append(r.ran, scope)
	if len(r.results) == 0 {
		return nil
	}
	err := r.results[0]
	r.results = r.results[1:]
	return err
}

func cancelAfter(fake *clock.Fake, cancel context.CancelFunc, n int) {
	count := 0
	fake.OnSleep(func(time.Duration) {
		count++
		if count >= n {
			cancel()
		}
	})
}

func TestRunSequencesJobsAndDelays(t *testing.T) {
	news := types.Scope{Collection: "news", ChannelID: "1"}
	events := types.Scope{Collection: "events", ChannelID: "2"}
	plan := &staticPlan{jobs: []types.Scope{news, events}}
	runner := &scriptedRunner{results: []error{
		nil,
		&types.CooldownError{Remaining: 40 * time.Second},
		&types.RemoteRateLimitError{RetryAfter: 9},
		errors.New("boom"),
	}}
	fake := clock.NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancelAfter(fake, cancel, 4)

	err := New(plan, runner, fake, nil).Run(ctx)

	require.NoError(t, err)
	assert.Equal(t, []types.Scope{news, events, news, events}, runner.ran)
	assert.Equal(t, []time.Duration{60 * time.Second, 40 * time.Second, 10 * time.Second, 60 * time.Second}, fake.Sleeps())
}

func TestRunIdlesWithoutJobs(t *testing.T) {
	plan := &staticPlan{idle: 10 * time.Second}
	runner := &scriptedRunner{}
	fake := clock.NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancelAfter(fake, cancel, 3)

	require.NoError(t, New(plan, runner, fake, nil).Run(ctx))

	assert.Empty(t, runner.ran)
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second}, fake.Sleeps())
}

func TestRunPicksUpNewJobs(t *testing.T) {
	plan := &staticPlan{idle: 10 * time.Second}
	runner := &scriptedRunner{}
	fake := clock.NewFake(time.Unix(0, 0))
	ctx, cancel := context.WithCancel(context.Background())

	count := 0
	fake.OnSleep(func(time.Duration) {
		count++
		if count == 1 {
			plan.jobs = []types.Scope{{Collection: "staff", ChannelID: "5"}}
		}
		if count == 2 {
			cancel()
		}
	})

	require.NoError(t, New(plan, runner, fake, nil).Run(ctx))
	assert.Equal(t, []types.Scope{{Collection: "staff", ChannelID: "5"}}, runner.ran)
}

func TestRunStopsBetweenJobs(t *testing.T) {
	plan := &staticPlan{jobs: []types.Scope{{Collection: "news", ChannelID: "1"}, {Collection: "news", ChannelID: "2"}}}
	ctx, cancel := context.WithCancel(context.Background())
	runner := &cancellingRunner{cancel: cancel}

	require.NoError(t, New(plan, runner, clock.NewFake(time.Unix(0, 0)), nil).Run(ctx))
	assert.Equal(t, 1, runner.calls)
}

type cancellingRunner struct {
	cancel context.CancelFunc
	calls  int
}

func (r *cancellingRunner) RunJob(context.Context, types.Scope) error {
	r.calls++
	r.cancel()
	return nil
}

func TestRunPass(t *testing.T) {
	plan := &staticPlan{jobs: []types.Scope{
		{Collection: "news", ChannelID: "1"},
		{Collection: "staff", ChannelID: "1"},
		{Collection: "events", ChannelID: "1"},
	}}
	runner := &scriptedRunner{results: []error{nil, &types.CooldownError{Remaining: 20 * time.Second}, nil}}
	fake := clock.NewFake(time.Unix(0, 0))

	ran, failed := New(plan, runner, fake, nil).RunPass(context.Background())

	assert.Equal(t, 3, ran)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []time.Duration{60 * time.Second, 20 * time.Second}, fake.Sleeps())
}

func TestRunOnceQuietsRepeatedFailures(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	job := types.Scope{Collection: "news", ChannelID: "1"}
	runner := &scriptedRunner{results: []error{
		&types.HTTPError{Status: 502},
		&types.HTTPError{Status: 503},
		&types.AuthError{Status: 401},
		nil,
		&types.HTTPError{Status: 502},
	}}
	s := New(&staticPlan{}, runner, clock.NewFake(time.Unix(0, 0)), zap.New(core))

	for range 5 {
		_, _ = s.RunOnce(context.Background(), job, DefaultPolicy())
	}

	var levels []zapcore.Level
	for _, entry := range logs.All() {
		levels = append(levels, entry.Level)
	}
	assert.Equal(t, []zapcore.Level{
		zapcore.WarnLevel,
		zapcore.DebugLevel,
		zapcore.ErrorLevel,
		zapcore.DebugLevel,
		zapcore.WarnLevel,
	}, levels)
	assert.Equal(t, "job still failing", logs.All()[1].Message)
}
