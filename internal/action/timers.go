package action

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TimerManager fires one-shot synthetic `timer_fire` events after a
// delay; each timer can be canceled before it fires. The emitter
// receives the timer's declared event name, its data, and the instant
// it was scheduled to fire, so the caller can emit both the named
// event and the generic `timer_fire` event carrying the full
// {id, event, data, expiresAt} wire shape.
type TimerManager struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	emitter func(id, event string, data map[string]any, expiresAt time.Time)
}

func NewTimerManager(emitter func(id, event string, data map[string]any, expiresAt time.Time)) *TimerManager {
	return &TimerManager{timers: make(map[string]*time.Timer), emitter: emitter}
}

func (t *TimerManager) Create(id, event string, delay time.Duration, data map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[id]; ok {
		existing.Stop()
	}
	expiresAt := time.Now().Add(delay)
	t.timers[id] = time.AfterFunc(delay, func() {
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
		t.emitter(id, event, data, expiresAt)
	})
}

func (t *TimerManager) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	timer, ok := t.timers[id]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, id)
	return true
}

func registerControl(r *Registry) {
	r.Register("log", verbLog)
	r.Register("emit", verbEmit)
	r.Register("timer_create", verbTimerCreate)
	r.Register("timer_cancel", verbTimerCancel)
}

func verbLog(_ *Context, params map[string]any) (any, error) {
	level := strOr(params, "level", "info")
	message := str(params, "message")
	switch level {
	case "debug":
		slog.Debug(message)
	case "warn":
		slog.Warn(message)
	case "error":
		slog.Error(message)
	default:
		slog.Info(message)
	}
	return nil, nil
}

func verbEmit(actx *Context, params map[string]any) (any, error) {
	event, err := requireString(params, "event")
	if err != nil {
		return nil, err
	}
	if actx.Emit == nil {
		return nil, nil
	}
	data, _ := params["data"].(map[string]any)
	actx.Emit(event, data)
	return nil, nil
}

func verbTimerCreate(actx *Context, params map[string]any) (any, error) {
	if actx.Timers == nil {
		return nil, nil
	}
	id, err := requireString(params, "id")
	if err != nil {
		return nil, err
	}
	event, err := requireString(params, "event")
	if err != nil {
		return nil, err
	}
	seconds, ok := num(params, "delay")
	if !ok {
		return nil, fmt.Errorf("timer_create: parameter %q is required", "delay")
	}
	data, _ := params["data"].(map[string]any)
	actx.Timers.Create(id, event, time.Duration(seconds)*time.Second, data)
	return nil, nil
}

func verbTimerCancel(actx *Context, params map[string]any) (any, error) {
	if actx.Timers == nil {
		return false, nil
	}
	id, err := requireString(params, "id")
	if err != nil {
		return nil, err
	}
	return actx.Timers.Cancel(id), nil
}
