package voice_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakunlabs/flowbot/internal/platform"
	"github.com/rakunlabs/flowbot/internal/voice"
)

type fakePlatform struct {
	platform.ClientSurface
	onEnd map[string]platform.TrackEndCallback

	lastSource string
	volume     int
}

func newFake() *fakePlatform { return &fakePlatform{onEnd: make(map[string]platform.TrackEndCallback)} }

func (f *fakePlatform) VoiceJoin(context.Context, string, string, bool, bool) error { return nil }
func (f *fakePlatform) VoiceLeave(context.Context, string) error                   { return nil }
func (f *fakePlatform) VoicePlay(_ context.Context, guildID, source string, onEnd platform.TrackEndCallback) error {
	f.onEnd[guildID] = onEnd
	f.lastSource = source
	return nil
}
func (f *fakePlatform) VoicePause(context.Context, string) error     { return nil }
func (f *fakePlatform) VoiceResume(context.Context, string) error    { return nil }
func (f *fakePlatform) VoiceStop(context.Context, string) error      { return nil }
func (f *fakePlatform) VoiceSetVolume(_ context.Context, _ string, volume int) error {
	f.volume = volume
	return nil
}

func TestJoinPlayPauseResume(t *testing.T) {
	p := newFake()
	m := voice.NewManager(p)
	ctx := context.Background()

	require.NoError(t, m.Join(ctx, "g1", "c1", false, false, 0))
	require.NoError(t, m.Play(ctx, "g1", "track1", 100, 0))

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, m.Pause(ctx, "g1"))
	pos1 := m.GetPlaybackPosition("g1")
	assert.Greater(t, pos1, time.Duration(0))

	require.NoError(t, m.Resume(ctx, "g1"))
	pos2 := m.GetPlaybackPosition("g1")
	assert.GreaterOrEqual(t, pos2, time.Duration(0))
}

func TestVolumeClamps(t *testing.T) {
	p := newFake()
	m := voice.NewManager(p)
	ctx := context.Background()
	require.NoError(t, m.Join(ctx, "g1", "c1", false, false, 0))
	require.NoError(t, m.SetVolume(ctx, "g1", 500))
	assert.Equal(t, 200, p.volume)
	require.NoError(t, m.SetVolume(ctx, "g1", -10))
	assert.Equal(t, 0, p.volume)
}

func TestTrackEndAdvancesToQueuedTrack(t *testing.T) {
	p := newFake()
	m := voice.NewManager(p)
	ctx := context.Background()
	require.NoError(t, m.Join(ctx, "g1", "c1", false, false, 0))

	n, err := m.AddToQueue("g1", "track2", "last")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, m.Play(ctx, "g1", "track1", 100, 0))
	onEnd := p.onEnd["g1"]
	require.NotNil(t, onEnd)

	onEnd("g1") // simulate track1 ending -> should advance to queued track2
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, "track2", p.lastSource)
}

func TestMaxQueueSizeRejected(t *testing.T) {
	p := newFake()
	m := voice.NewManager(p)
	ctx := context.Background()
	require.NoError(t, m.Join(ctx, "g1", "c1", false, false, 1))

	_, err := m.AddToQueue("g1", "a", "last")
	require.NoError(t, err)
	_, err = m.AddToQueue("g1", "b", "last")
	assert.Error(t, err)
}
