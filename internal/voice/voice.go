// Package voice implements the C11 voice manager: a per-guild
// playback state machine with a queue, loop modes, filters, volume,
// and seek/pause position accounting.
package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rakunlabs/flowbot/internal/platform"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnected     State = "connected"
	StatePlaying       State = "playing"
	StatePaused        State = "paused"
)

type LoopMode string

const (
	LoopOff   LoopMode = "off"
	LoopTrack LoopMode = "track"
	LoopQueue LoopMode = "queue"
)

type Track struct {
	Source string
	Volume int
}

// guildState is owned by exactly one task tree rooted at its
// voice_join; the mutex only guards concurrent reads from actions that
// are not part of that owning tree (status queries, queue_add from a
// different flow, etc).
type guildState struct {
	mu sync.Mutex

	state     State
	current   *Track
	queue     []Track
	loopMode  LoopMode
	filters   []string
	volume    int
	maxQueue  int

	startTime time.Time
	pausedAt  time.Time
}

type Manager struct {
	platform platform.ClientSurface

	mu     sync.Mutex
	guilds map[string]*guildState

	readyTimeout time.Duration
}

func NewManager(p platform.ClientSurface) *Manager {
	return &Manager{platform: p, guilds: make(map[string]*guildState), readyTimeout: 30 * time.Second}
}

func (m *Manager) guild(guildID string) *guildState {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guilds[guildID]
	if !ok {
		g = &guildState{state: StateDisconnected, volume: 100, maxQueue: 1000, loopMode: LoopOff}
		m.guilds[guildID] = g
	}
	return g
}

func (m *Manager) Join(ctx context.Context, guildID, channelID string, selfDeaf, selfMute bool, maxQueueSize int) error {
	g := m.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := m.platform.VoiceJoin(ctx, guildID, channelID, selfDeaf, selfMute); err != nil {
		return fmt.Errorf("voice join guild %q: %w", guildID, err)
	}
	g.state = StateConnected
	if maxQueueSize > 0 {
		g.maxQueue = maxQueueSize
	}
	return nil
}

func (m *Manager) Leave(ctx context.Context, guildID string) error {
	g := m.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := m.platform.VoiceLeave(ctx, guildID); err != nil {
		return fmt.Errorf("voice leave guild %q: %w", guildID, err)
	}
	g.state = StateDisconnected
	g.current = nil
	g.queue = nil
	g.pausedAt = time.Time{}
	return nil
}

func (m *Manager) Play(ctx context.Context, guildID, source string, volume int, seek time.Duration) error {
	g := m.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateDisconnected {
		return fmt.Errorf("voice play: guild %q has no active connection", guildID)
	}
	if volume <= 0 {
		volume = g.volume
	}
	track := &Track{Source: source, Volume: clampVolume(volume)}

	err := m.platform.VoicePlay(ctx, guildID, source, func(endedGuildID string) {
		m.onTrackEnd(endedGuildID)
	})
	if err != nil {
		return fmt.Errorf("voice play guild %q: %w", guildID, err)
	}

	g.current = track
	g.volume = track.Volume
	g.state = StatePlaying
	g.startTime = time.Now().Add(-seek)
	g.pausedAt = time.Time{}
	return nil
}

func (m *Manager) Pause(ctx context.Context, guildID string) error {
	g := m.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StatePlaying {
		return nil
	}
	if err := m.platform.VoicePause(ctx, guildID); err != nil {
		return fmt.Errorf("voice pause guild %q: %w", guildID, err)
	}
	g.state = StatePaused
	g.pausedAt = time.Now()
	return nil
}

func (m *Manager) Resume(ctx context.Context, guildID string) error {
	g := m.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StatePaused {
		return nil
	}
	if err := m.platform.VoiceResume(ctx, guildID); err != nil {
		return fmt.Errorf("voice resume guild %q: %w", guildID, err)
	}
	g.startTime = g.startTime.Add(time.Since(g.pausedAt))
	g.pausedAt = time.Time{}
	g.state = StatePlaying
	return nil
}

func (m *Manager) Stop(ctx context.Context, guildID string) error {
	g := m.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := m.platform.VoiceStop(ctx, guildID); err != nil {
		return fmt.Errorf("voice stop guild %q: %w", guildID, err)
	}
	g.current = nil
	g.pausedAt = time.Time{}
	if g.state != StateDisconnected {
		g.state = StateConnected
	}
	return nil
}

func (m *Manager) Skip(ctx context.Context, guildID string) error {
	return m.advance(ctx, guildID, false)
}

func (m *Manager) Seek(ctx context.Context, guildID string, position time.Duration) error {
	g := m.guild(guildID)
	g.mu.Lock()
	track := g.current
	g.mu.Unlock()
	if track == nil {
		return fmt.Errorf("voice seek: guild %q is not playing", guildID)
	}
	return m.Play(ctx, guildID, track.Source, track.Volume, position)
}

func (m *Manager) SetVolume(ctx context.Context, guildID string, volume int) error {
	g := m.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.volume = clampVolume(volume)
	if err := m.platform.VoiceSetVolume(ctx, guildID, g.volume); err != nil {
		return fmt.Errorf("voice volume guild %q: %w", guildID, err)
	}
	return nil
}

func (m *Manager) SetFilters(ctx context.Context, guildID string, filters []string) error {
	g := m.guild(guildID)
	g.mu.Lock()
	changed := !stringsEqual(g.filters, filters)
	g.filters = filters
	playing := g.state == StatePlaying
	var track *Track
	var pos time.Duration
	if playing {
		track = g.current
		pos = m.position(g)
	}
	g.mu.Unlock()

	if changed && playing && track != nil {
		return m.Play(ctx, guildID, track.Source, track.Volume, pos)
	}
	return nil
}

func (m *Manager) SetLoopMode(guildID string, mode LoopMode) {
	g := m.guild(guildID)
	g.mu.Lock()
	g.loopMode = mode
	g.mu.Unlock()
}

// AddToQueue supports 'next' | 'last' | an integer position.
func (m *Manager) AddToQueue(guildID, source string, position any) (int, error) {
	g := m.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.queue) >= g.maxQueue {
		return 0, fmt.Errorf("queue_add: guild %q queue is full (max %d)", guildID, g.maxQueue)
	}

	track := Track{Source: source, Volume: g.volume}
	switch p := position.(type) {
	case string:
		switch p {
		case "next":
			g.queue = append([]Track{track}, g.queue...)
		default: // "last" and anything unrecognized
			g.queue = append(g.queue, track)
		}
	case float64:
		idx := int(p)
		if idx < 0 {
			idx = 0
		}
		if idx > len(g.queue) {
			idx = len(g.queue)
		}
		g.queue = append(g.queue[:idx], append([]Track{track}, g.queue[idx:]...)...)
	default:
		g.queue = append(g.queue, track)
	}
	return len(g.queue), nil
}

func (m *Manager) ClearQueue(guildID string) {
	g := m.guild(guildID)
	g.mu.Lock()
	g.queue = nil
	g.mu.Unlock()
}

func (m *Manager) ShuffleQueue(guildID string, shuffle func([]Track)) {
	g := m.guild(guildID)
	g.mu.Lock()
	shuffle(g.queue)
	g.mu.Unlock()
}

// GetPlaybackPosition returns pausedAt-startTime when paused,
// now-startTime otherwise, and 0 when idle.
func (m *Manager) GetPlaybackPosition(guildID string) time.Duration {
	g := m.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return m.position(g)
}

func (m *Manager) position(g *guildState) time.Duration {
	switch g.state {
	case StatePaused:
		return g.pausedAt.Sub(g.startTime)
	case StatePlaying:
		return time.Since(g.startTime)
	default:
		return 0
	}
}

func (m *Manager) onTrackEnd(guildID string) {
	_ = m.advance(context.Background(), guildID, true)
}

func (m *Manager) advance(ctx context.Context, guildID string, naturalEnd bool) error {
	g := m.guild(guildID)
	g.mu.Lock()
	mode := g.loopMode
	cur := g.current

	var next *Track
	switch {
	case naturalEnd && mode == LoopTrack && cur != nil:
		next = cur
	case naturalEnd && mode == LoopQueue && cur != nil:
		g.queue = append(g.queue, *cur)
		fallthrough
	default:
		if len(g.queue) > 0 {
			t := g.queue[0]
			g.queue = g.queue[1:]
			next = &t
		}
	}
	g.mu.Unlock()

	if next == nil {
		return m.Stop(ctx, guildID)
	}
	return m.Play(ctx, guildID, next.Source, next.Volume, 0)
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 200 {
		return 200
	}
	return v
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
