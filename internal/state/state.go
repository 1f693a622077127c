// Package state implements the C4 state manager: scoped variables
// backed by store.KV. Each declared variable composes its storage key
// from its scope plus the calling context's IDs, so the same
// declaration independently tracks a value per guild, per channel,
// per user, per member, or once globally.
package state

import (
	"context"
	"fmt"
	"strings"

	"github.com/rakunlabs/flowbot/internal/spec"
	"github.com/rakunlabs/flowbot/internal/store"
)

// Scope identifies how a variable's storage key is composed.
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeGuild   Scope = "guild"
	ScopeChannel Scope = "channel"
	ScopeUser    Scope = "user"
	ScopeMember  Scope = "member"
)

// Ident carries the calling context's identifiers; not every field is
// populated for every event (a DM has no guild, for instance).
type Ident struct {
	GuildID   string
	ChannelID string
	UserID    string
}

// Manager resolves spec.Variable declarations against a KV store.
type Manager struct {
	kv        store.KV
	keyPrefix string
	vars      map[string]spec.Variable
	order     []string
}

func New(kv store.KV, keyPrefix string, declared []spec.Variable) *Manager {
	m := &Manager{
		kv:        kv,
		keyPrefix: keyPrefix,
		vars:      make(map[string]spec.Variable, len(declared)),
	}
	for _, v := range declared {
		m.vars[v.Name] = v
		m.order = append(m.order, v.Name)
	}
	return m
}

// getVariableNames lets the flow engine inject every declared
// variable's current value into the evaluator's context for the
// calling scope.
func (m *Manager) getVariableNames() []string {
	return m.order
}

// Snapshot returns every declared variable's resolved value for ident,
// keyed by variable name, for the flow engine to fold into an
// evaluation context.
func (m *Manager) Snapshot(ctx context.Context, ident Ident) (map[string]any, error) {
	out := make(map[string]any, len(m.order))
	for _, name := range m.getVariableNames() {
		v, err := m.Get(ctx, name, ident)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func (m *Manager) Get(ctx context.Context, name string, ident Ident) (any, error) {
	decl, ok := m.vars[name]
	if !ok {
		return nil, nil
	}
	key, err := m.storageKey(decl, ident)
	if err != nil {
		return nil, err
	}
	sv, err := m.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get variable %q: %w", name, err)
	}
	if sv == nil {
		return decl.Default, nil
	}
	return sv.Value, nil
}

func (m *Manager) Set(ctx context.Context, name string, ident Ident, value any) error {
	decl, ok := m.vars[name]
	if !ok {
		decl = spec.Variable{Name: name, Scope: string(ScopeGlobal)}
	}
	key, err := m.storageKey(decl, ident)
	if err != nil {
		return err
	}
	return m.kv.Set(ctx, key, store.StoredValue{Value: value, Type: valueType(value)})
}

// Increment adds delta to the current numeric value (defaulting to 0)
// and persists the result, returning the new value.
func (m *Manager) Increment(ctx context.Context, name string, ident Ident, delta float64) (float64, error) {
	cur, err := m.Get(ctx, name, ident)
	if err != nil {
		return 0, err
	}
	base, _ := cur.(float64)
	next := base + delta
	if err := m.Set(ctx, name, ident, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (m *Manager) storageKey(decl spec.Variable, ident Ident) (string, error) {
	scope := Scope(decl.Scope)
	if scope == "" {
		scope = ScopeGlobal
	}
	var parts []string
	switch scope {
	case ScopeGlobal:
		parts = []string{"global"}
	case ScopeGuild:
		if ident.GuildID == "" {
			return "", fmt.Errorf("variable %q requires a guild scope but none is set", decl.Name)
		}
		parts = []string{"guild", ident.GuildID}
	case ScopeChannel:
		if ident.ChannelID == "" {
			return "", fmt.Errorf("variable %q requires a channel scope but none is set", decl.Name)
		}
		parts = []string{"channel", ident.ChannelID}
	case ScopeUser:
		if ident.UserID == "" {
			return "", fmt.Errorf("variable %q requires a user scope but none is set", decl.Name)
		}
		parts = []string{"user", ident.UserID}
	case ScopeMember:
		if ident.GuildID == "" || ident.UserID == "" {
			return "", fmt.Errorf("variable %q requires a member scope but guild/user are incomplete", decl.Name)
		}
		parts = []string{"member", ident.GuildID, ident.UserID}
	default:
		return "", fmt.Errorf("variable %q has unknown scope %q", decl.Name, decl.Scope)
	}
	return m.keyPrefix + "var:" + decl.Name + ":" + strings.Join(parts, ":"), nil
}

func valueType(v any) store.ValueType {
	switch v.(type) {
	case nil:
		return store.TypeNull
	case bool:
		return store.TypeBoolean
	case float64, int, int64:
		return store.TypeNumber
	case string:
		return store.TypeString
	case []any:
		return store.TypeArray
	case map[string]any:
		return store.TypeObject
	default:
		return store.TypeJSON
	}
}
