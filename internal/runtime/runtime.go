// Package runtime is the composition root: it wires C1's normalized
// spec document into every other component (store, state, voice,
// action executor, flow engine, event router, interaction dispatcher,
// cron scheduler, automod engine, component builders) and drives the
// platform adapter's event stream into them.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rakunlabs/flowbot/internal/action"
	"github.com/rakunlabs/flowbot/internal/automod"
	"github.com/rakunlabs/flowbot/internal/component"
	"github.com/rakunlabs/flowbot/internal/config"
	"github.com/rakunlabs/flowbot/internal/cron"
	"github.com/rakunlabs/flowbot/internal/event"
	"github.com/rakunlabs/flowbot/internal/flow"
	"github.com/rakunlabs/flowbot/internal/interaction"
	"github.com/rakunlabs/flowbot/internal/platform"
	"github.com/rakunlabs/flowbot/internal/spec"
	"github.com/rakunlabs/flowbot/internal/state"
	"github.com/rakunlabs/flowbot/internal/store"
	"github.com/rakunlabs/flowbot/internal/store/memory"
	"github.com/rakunlabs/flowbot/internal/store/postgres"
	"github.com/rakunlabs/flowbot/internal/store/sqlite3"
	"github.com/rakunlabs/flowbot/internal/voice"
)

// Discord's public interaction type enum; kept local so this package
// doesn't need an SDK import just to branch on it.
const (
	interactionTypeCommand     = 2
	interactionTypeComponent   = 3
	interactionTypeModalSubmit = 5
)

// Runtime owns every component instance for one running bot and the
// glue that feeds platform events into them.
type Runtime struct {
	Config *config.Config
	Doc    *spec.Document

	Platform   platform.ClientSurface
	Store      store.Store
	State      *state.Manager
	Voice      *voice.Manager
	Registry   *action.Registry
	Executor   *action.Executor
	Components *component.Builder
	Flow       *flow.Engine
	Router     *event.Router
	Dispatcher *interaction.Dispatcher
	Automod    *automod.Engine
	Cron       *cron.Scheduler
	Timers     *action.TimerManager
}

// Build constructs every component from cfg/doc and wires their
// registrations, but does not open the platform connection or start
// the cron ticker — call Start for that.
func Build(ctx context.Context, cfg *config.Config, doc *spec.Document, plat platform.ClientSurface) (*Runtime, error) {
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	rt := &Runtime{
		Config:   cfg,
		Doc:      doc,
		Platform: plat,
		Store:    st,
		State:    state.New(st, "", doc.State.Variables),
		Voice:    voice.NewManager(plat),
		Registry: action.NewRegistry(),
	}
	rt.Executor = action.NewExecutor(rt.Registry)
	rt.Components = component.NewBuilder(component.NewRegistry(doc.Components), themeFrom(doc.Identity))
	rt.Flow = flow.NewEngine(rt.Executor, doc.Flows)
	rt.Router = event.NewRouter(rt.Flow)
	rt.Dispatcher = interaction.NewDispatcher(rt.Flow)
	rt.Automod = automod.NewEngine(doc.AutomodRules)
	rt.Timers = action.NewTimerManager(rt.fireTimer)

	for _, tableDef := range doc.State.Tables {
		if err := st.CreateTable(ctx, storeTableDef(tableDef)); err != nil {
			return nil, fmt.Errorf("create table %q: %w", tableDef.Name, err)
		}
	}

	for _, h := range doc.Events {
		rt.Router.Subscribe(h)
	}

	registerInteractions(rt.Dispatcher, doc)

	defaultTZ, err := resolveTimezone(cfg.Scheduler.DefaultTimezone)
	if err != nil {
		return nil, err
	}
	cronSched, err := cron.NewScheduler(rt.Executor, doc.SchedulerJobs, defaultTZ, rt.cronContext)
	if err != nil {
		return nil, fmt.Errorf("build cron scheduler: %w", err)
	}
	rt.Cron = cronSched

	return rt, nil
}

// storeTableDef converts a spec-declared table into the store
// package's own TableDef shape; the two stay separate so store never
// depends on spec.
func storeTableDef(t spec.TableDef) store.TableDef {
	cols := make([]store.ColumnDef, 0, len(t.Columns))
	for _, c := range t.Columns {
		cols = append(cols, store.ColumnDef{
			Name: c.Name, Type: store.ColumnType(c.Type),
			Primary: c.Primary, Unique: c.Unique, Index: c.Index,
		})
	}
	return store.TableDef{Name: t.Name, Columns: cols, CompositeIndexes: t.CompositeIndexes}
}

func resolveTimezone(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("scheduler default_timezone %q: %w", name, err)
	}
	return loc, nil
}

func themeFrom(identity map[string]any) map[string]int {
	raw, ok := identity["theme"].(map[string]any)
	if !ok {
		return nil
	}
	theme := make(map[string]int, len(raw))
	for k, v := range raw {
		switch n := v.(type) {
		case int:
			theme[k] = n
		case int64:
			theme[k] = int(n)
		case float64:
			theme[k] = int(n)
		}
	}
	return theme
}

func openStore(ctx context.Context, cfg config.Store) (store.Store, error) {
	switch {
	case cfg.Postgres != nil:
		return postgres.New(ctx, postgres.Config{
			Datasource:      cfg.Postgres.Datasource,
			Schema:          cfg.Postgres.Schema,
			TablePrefix:     cfg.Postgres.TablePrefix,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		})
	case cfg.SQLite != nil:
		return sqlite3.New(ctx, cfg.SQLite.Datasource, cfg.SQLite.TablePrefix)
	default:
		slog.Warn("no store backend configured, falling back to the in-memory store (state does not survive a restart)")
		return memory.New(), nil
	}
}

// registerCommands recursively registers a command and every
// subcommand under it, joining path segments with a space (the same
// shape the platform shows the user: "/config set").
func registerCommands(d *interaction.Dispatcher, parentPath string, cmds []spec.Command) {
	for _, c := range cmds {
		path := c.Name
		if parentPath != "" {
			path = parentPath + " " + c.Name
		}
		if len(c.Actions) > 0 {
			d.RegisterCommand(path, c.Actions)
		}
		registerCommands(d, path, c.Subcommands)
	}
}

func registerInteractions(d *interaction.Dispatcher, doc *spec.Document) {
	registerCommands(d, "", doc.Commands)
	for _, cm := range doc.ContextMenus {
		d.RegisterContextMenu(cm.Kind, cm.Name, cm.Actions)
	}
	for _, t := range doc.Components.Buttons {
		d.RegisterButton(t.Name, t.Actions)
	}
	for _, t := range doc.Components.Selects {
		d.RegisterSelect(t.Name, t.Actions)
	}
	for _, t := range doc.Components.Modals {
		d.RegisterModal(t.Name, t.Actions)
	}
}

// commandSpecs converts the top-level commands into the
// platform-agnostic registration shape RegisterCommands wants. Every
// top-level command is advertised with its name and description;
// subcommands are not included, and option shapes are the platform
// adapter's concern, not the engine's.
func commandSpecs(cmds []spec.Command) []platform.CommandSpec {
	out := make([]platform.CommandSpec, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, platform.CommandSpec{Name: c.Name, Description: c.Description})
	}
	return out
}

func intentsOf(doc *spec.Document) []platform.Intent {
	out := make([]platform.Intent, 0, len(doc.Intents))
	for _, i := range doc.Intents {
		out = append(out, platform.Intent(i))
	}
	return out
}

// newContext builds a base action.Context for ident, wiring its Emit
// closure to re-enter the event router with this same identity.
func (rt *Runtime) newContext(ctx context.Context, ident state.Ident, interactionID, interactionToken string) *action.Context {
	actx := &action.Context{
		Ctx: ctx, Vars: map[string]any{}, Ident: ident, Platform: rt.Platform,
		State: rt.State, Store: rt.Store, Voice: rt.Voice, Email: rt.smtpConfig(),
		InteractionID: interactionID, InteractionToken: interactionToken,
		Timers: rt.Timers, Components: rt.Components,
	}
	actx.Emit = func(eventName string, vars map[string]any) {
		rt.Router.Emit(actx, eventName, vars)
	}
	return actx
}

func (rt *Runtime) smtpConfig() *action.SMTPConfig {
	s := rt.Config.SMTP
	if s.Host == "" {
		return nil
	}
	return &action.SMTPConfig{
		Host: s.Host, Port: s.Port, Username: s.Username, Password: s.Password,
		From: s.From, TLS: s.TLS, NoTLS: s.NoTLS, InsecureSkipVerify: s.InsecureSkipVerify,
	}
}

// cronContext satisfies cron.ContextFactory: each tick gets a fresh,
// globally-scoped action.Context (cron jobs have no per-guild identity
// of their own).
func (rt *Runtime) cronContext(ctx context.Context, job spec.CronJob) *action.Context {
	actx := rt.newContext(ctx, state.Ident{}, "", "")
	actx.Vars["job"] = map[string]any{"name": job.Name, "cron": job.Cron}
	return actx
}

// fireTimer satisfies action.TimerManager's emitter: it emits the
// timer's declared event, then the generic timer_fire event carrying
// the full wire shape, both against a fresh global context (the
// manager does not track which guild/channel/user scheduled a timer).
func (rt *Runtime) fireTimer(id, eventName string, data map[string]any, expiresAt time.Time) {
	ctx := context.Background()
	actx := rt.newContext(ctx, state.Ident{}, "", "")
	timerVars := map[string]any{"id": id, "event": eventName, "data": data, "expiresAt": expiresAt}
	rt.Router.Emit(actx, eventName, data)
	rt.Router.Emit(actx, "timer_fire", map[string]any{"timer": timerVars})
}

// Start opens the platform connection, subscribes to every event the
// adapter can produce, registers slash commands, and starts the cron
// ticker. It blocks until ctx is canceled or Open fails.
func (rt *Runtime) Start(ctx context.Context) error {
	if err := rt.subscribePlatformEvents(); err != nil {
		return fmt.Errorf("subscribe platform events: %w", err)
	}

	if err := rt.Platform.Open(ctx, intentsOf(rt.Doc)); err != nil {
		return fmt.Errorf("open platform: %w", err)
	}

	if err := rt.Platform.RegisterCommands(ctx, commandSpecs(rt.Doc.Commands)); err != nil {
		slog.Error("failed to register commands", "error", err)
	}

	if identity, ok := rt.Doc.Identity["status"].(string); ok {
		activity, _ := rt.Doc.Identity["activity"].(string)
		if err := rt.Platform.SetPresence(ctx, identity, activity); err != nil {
			slog.Warn("failed to set presence", "error", err)
		}
	}

	rt.Cron.Start(ctx)

	<-ctx.Done()
	rt.Cron.Stop()
	return rt.Platform.Close()
}

var bridgedEvents = []string{
	"ready", "message_create", "message_update", "message_delete",
	"guild_member_add", "guild_member_remove", "guild_member_update",
	"voice_state_update", "message_reaction_add", "message_reaction_remove",
	"presence_update", "interaction_create",
}

func (rt *Runtime) subscribePlatformEvents() error {
	for _, name := range bridgedEvents {
		if err := rt.Platform.Subscribe(name, rt.onPlatformEvent); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) onPlatformEvent(ev platform.Event) {
	ident := state.Ident{GuildID: ev.GuildID, ChannelID: ev.ChannelID, UserID: ev.UserID}

	if ev.Name == "interaction_create" {
		rt.dispatchInteraction(ev, ident)
		return
	}

	actx := rt.newContext(context.Background(), ident, "", "")
	vars := cloneEventVars(ev)

	if ev.Name == "message_create" && rt.Automod != nil {
		rt.checkAutomod(actx, ev, vars)
	}

	rt.Router.Emit(actx, ev.Name, vars)
}

func cloneEventVars(ev platform.Event) map[string]any {
	vars := make(map[string]any, len(ev.Data)+1)
	for k, v := range ev.Data {
		vars[k] = v
	}
	return vars
}

// checkAutomod runs C10 before normal event routing continues, per
// spec.md's message_create ordering.
func (rt *Runtime) checkAutomod(actx *action.Context, ev platform.Event, vars map[string]any) {
	content, _ := ev.Data["content"].(string)
	if content == "" {
		return
	}
	var attachments []string
	if raw, ok := ev.Data["attachments"].([]map[string]any); ok {
		for _, a := range raw {
			if fn, ok := a["filename"].(string); ok {
				attachments = append(attachments, fn)
			}
		}
	}
	mctx := automod.MessageContext{
		GuildID: ev.GuildID, ChannelID: ev.ChannelID, UserID: ev.UserID, Attachments: attachments,
	}
	result := rt.Automod.Check(content, mctx, vars, time.Now())
	if !result.Passed {
		rt.Automod.ExecuteActions(rt.Executor, actx, result.Matches)
	}
}

// dispatchInteraction routes an interaction_create event to the
// command, button, select, or modal channel. The platform layer
// doesn't thread the Discord component_type through (button vs
// select), so a message-component interaction tries the button
// registry first, falling back to select.
func (rt *Runtime) dispatchInteraction(ev platform.Event, ident state.Ident) {
	interactionID, _ := ev.Data["interaction_id"].(string)
	token, _ := ev.Data["token"].(string)
	actx := rt.newContext(context.Background(), ident, interactionID, token)
	for k, v := range ev.Data {
		actx.Vars[k] = v
	}

	itype, _ := ev.Data["type"].(int)
	var err error
	switch itype {
	case interactionTypeCommand:
		if command, _ := ev.Data["command"].(string); command != "" {
			err = rt.Dispatcher.DispatchCommand(actx, command)
		}
	case interactionTypeModalSubmit:
		if customID, _ := ev.Data["custom_id"].(string); customID != "" {
			err = rt.Dispatcher.DispatchModal(actx, customID)
		}
	case interactionTypeComponent:
		if customID, _ := ev.Data["custom_id"].(string); customID != "" {
			err = rt.Dispatcher.DispatchButton(actx, customID)
			if err != nil {
				err = rt.Dispatcher.DispatchSelect(actx, customID)
			}
		}
	}
	if err != nil {
		slog.Error("interaction dispatch failed", "type", itype, "error", err)
	}
}
