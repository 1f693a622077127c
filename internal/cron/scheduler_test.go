package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakunlabs/flowbot/internal/action"
	"github.com/rakunlabs/flowbot/internal/spec"
)

func countingRegistry(counter *int) *action.Registry {
	reg := action.NewRegistry()
	reg.Register("count", func(_ *action.Context, _ map[string]any) (any, error) {
		*counter++
		return nil, nil
	})
	return reg
}

func newTestScheduler(t *testing.T, jobs []spec.CronJob) (*Scheduler, *int) {
	t.Helper()
	counter := 0
	exec := action.NewExecutor(countingRegistry(&counter))
	s, err := NewScheduler(exec, jobs, time.UTC, func(ctx context.Context, _ spec.CronJob) *action.Context {
		return &action.Context{Ctx: ctx, Vars: map[string]any{}}
	})
	require.NoError(t, err)
	return s, &counter
}

func TestCheckAllFiresDueEnabledJob(t *testing.T) {
	s, counter := newTestScheduler(t, []spec.CronJob{
		{Name: "every-minute", Cron: "* * * * *", Enabled: true, Actions: []spec.Action{{Verb: "count"}}},
	})

	s.checkAll(context.Background(), time.Now().Add(2*time.Minute))
	assert.Equal(t, 1, *counter)
}

func TestCheckAllSkipsDisabledJob(t *testing.T) {
	s, counter := newTestScheduler(t, []spec.CronJob{
		{Name: "off", Cron: "* * * * *", Enabled: false, Actions: []spec.Action{{Verb: "count"}}},
	})

	s.checkAll(context.Background(), time.Now().Add(2*time.Minute))
	assert.Equal(t, 0, *counter)
}

func TestCheckAllSkipsFalsyWhen(t *testing.T) {
	s, counter := newTestScheduler(t, []spec.CronJob{
		{Name: "guarded", Cron: "* * * * *", Enabled: true, When: "false", Actions: []spec.Action{{Verb: "count"}}},
	})

	s.checkAll(context.Background(), time.Now().Add(2*time.Minute))
	assert.Equal(t, 0, *counter)
}

func TestCheckAllAdvancesNextRunPastNow(t *testing.T) {
	s, counter := newTestScheduler(t, []spec.CronJob{
		{Name: "every-minute", Cron: "* * * * *", Enabled: true, Actions: []spec.Action{{Verb: "count"}}},
	})

	now := time.Now().Add(2 * time.Minute)
	s.checkAll(context.Background(), now)
	require.Equal(t, 1, *counter)
	assert.True(t, s.jobs[0].nextRun.After(now))

	s.checkAll(context.Background(), now)
	assert.Equal(t, 1, *counter, "job should not refire before its new nextRun")
}

func TestStopIsSafeWithoutStart(t *testing.T) {
	s, _ := newTestScheduler(t, nil)
	assert.NotPanics(t, func() { s.Stop() })
}
