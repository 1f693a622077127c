package cron

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rakunlabs/flowbot/internal/action"
	"github.com/rakunlabs/flowbot/internal/expr"
	"github.com/rakunlabs/flowbot/internal/spec"
)

// tickInterval is the scheduler's polling period. Cron granularity is
// one minute, so ticking any faster buys nothing.
const tickInterval = 60 * time.Second

// job pairs a parsed cron job with its compiled spec, resolved
// timezone, and the next computed fire time.
type job struct {
	def      spec.CronJob
	cronSpec Spec
	loc      *time.Location
	nextRun  time.Time
}

// ContextFactory builds a fresh action.Context for a single job fire.
// The scheduler owns no action.Context itself since it has no single
// guild/channel/user identity of its own.
type ContextFactory func(ctx context.Context, job spec.CronJob) *action.Context

// Scheduler runs cron jobs against the action executor on a
// minute-tick loop. Single process: no leader election, no
// distributed lock.
type Scheduler struct {
	Executor       *action.Executor
	DefaultTZ      *time.Location
	ContextFactory ContextFactory

	mu     sync.Mutex
	jobs   []*job
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler builds a Scheduler from the spec's registered cron
// jobs. Disabled jobs are kept (so re-enabling doesn't need a
// restart) but never fire.
func NewScheduler(exec *action.Executor, jobs []spec.CronJob, defaultTZ *time.Location, factory ContextFactory) (*Scheduler, error) {
	if defaultTZ == nil {
		defaultTZ = time.UTC
	}
	s := &Scheduler{Executor: exec, DefaultTZ: defaultTZ, ContextFactory: factory}

	for _, def := range jobs {
		loc := defaultTZ
		if def.Timezone != "" {
			l, err := time.LoadLocation(def.Timezone)
			if err != nil {
				slog.Warn("cron: unknown timezone, falling back to scheduler default", "job", def.Name, "timezone", def.Timezone, "error", err)
			} else {
				loc = l
			}
		}
		cs, err := Parse(def.Cron)
		if err != nil {
			return nil, err
		}
		j := &job{def: def, cronSpec: cs, loc: loc}
		j.nextRun = NextRun(cs, time.Now(), loc)
		s.jobs = append(s.jobs, j)
	}
	return s, nil
}

// Start performs one immediate check, then checks every tickInterval
// until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(runCtx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	s.checkAll(ctx, time.Now())

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.checkAll(ctx, now)
		}
	}
}

// Stop clears the tick timer and waits for any in-flight check to
// finish. Job registrations are preserved; Start may be called again.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) checkAll(ctx context.Context, now time.Time) {
	s.mu.Lock()
	jobs := append([]*job(nil), s.jobs...)
	s.mu.Unlock()

	for _, j := range jobs {
		s.checkOne(ctx, j, now)
	}
}

func (s *Scheduler) checkOne(ctx context.Context, j *job, now time.Time) {
	if !j.def.Enabled || now.Before(j.nextRun) {
		return
	}
	defer func() {
		j.nextRun = NextRun(j.cronSpec, now, j.loc)
	}()

	actx := s.ContextFactory(ctx, j.def)

	if j.def.When != "" {
		val, err := expr.Evaluate(j.def.When, actx.Vars)
		if err != nil {
			slog.Error("cron: when-guard failed to evaluate", "job", j.def.Name, "error", err)
			return
		}
		if !expr.Truthy(val) {
			return
		}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("cron: job panicked", "job", j.def.Name, "panic", r)
		}
	}()

	for _, res := range s.Executor.ExecuteSequence(j.def.Actions, actx) {
		if !res.Success {
			slog.Error("cron: job action failed", "job", j.def.Name, "verb", res.Verb, "error", res.Error)
		}
	}
}
