package spec

import (
	"fmt"
	"sort"

	"github.com/rakunlabs/flowbot/internal/errs"
)

// Build turns a normalized document tree (the output of Normalize)
// into the typed, immutable Document the rest of the runtime consumes.
func Build(normalized map[string]any) (*Document, error) {
	doc := &Document{
		Identity: asObject(normalized["identity"]),
		Presence: asObject(normalized["presence"]),
		Intents:  asStringSlice(normalized["intents"]),
	}

	for _, raw := range asSlice(normalized["commands"]) {
		c, err := buildCommand(raw)
		if err != nil {
			return nil, err
		}
		doc.Commands = append(doc.Commands, c)
	}
	for _, raw := range asSlice(normalized["context_menus"]) {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: context_menu record must be a mapping", errs.ErrNormalization)
		}
		actions, err := buildActionList(m["actions"])
		if err != nil {
			return nil, err
		}
		doc.ContextMenus = append(doc.ContextMenus, ContextMenu{
			Name:    getString(m, "name", ""),
			Kind:    getString(m, "type", "message"),
			Actions: actions,
		})
	}
	for _, raw := range asSlice(normalized["events"]) {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: event record must be a mapping", errs.ErrNormalization)
		}
		actions, err := buildActionList(m["actions"])
		if err != nil {
			return nil, err
		}
		doc.Events = append(doc.Events, EventHandler{
			Event:    getString(m, "event", ""),
			When:     getString(m, "when", ""),
			Debounce: getString(m, "debounce", ""),
			Throttle: getString(m, "throttle", ""),
			Actions:  actions,
		})
	}
	for _, raw := range asSlice(normalized["flows"]) {
		f, err := buildFlow(raw)
		if err != nil {
			return nil, err
		}
		doc.Flows = append(doc.Flows, f)
	}

	if sched, ok := normalized["scheduler"].(map[string]any); ok {
		for _, raw := range asSlice(sched["jobs"]) {
			j, err := buildCronJob(raw)
			if err != nil {
				return nil, err
			}
			doc.SchedulerJobs = append(doc.SchedulerJobs, j)
		}
	}

	if am, ok := normalized["automod"].(map[string]any); ok {
		for _, raw := range asSlice(am["rules"]) {
			r, err := buildAutomodRule(raw)
			if err != nil {
				return nil, err
			}
			doc.AutomodRules = append(doc.AutomodRules, r)
		}
	}

	if comp, ok := normalized["components"].(map[string]any); ok {
		for _, raw := range asSlice(comp["buttons"]) {
			t, err := buildComponentTemplate(raw, "button")
			if err != nil {
				return nil, err
			}
			doc.Components.Buttons = append(doc.Components.Buttons, t)
		}
		for _, raw := range asSlice(comp["selects"]) {
			t, err := buildComponentTemplate(raw, "select")
			if err != nil {
				return nil, err
			}
			doc.Components.Selects = append(doc.Components.Selects, t)
		}
		for _, raw := range asSlice(comp["modals"]) {
			t, err := buildComponentTemplate(raw, "modal")
			if err != nil {
				return nil, err
			}
			doc.Components.Modals = append(doc.Components.Modals, t)
		}
	}

	if st, ok := normalized["state"].(map[string]any); ok {
		doc.State = buildStateSpec(st)
	}
	doc.Voice = buildVoiceSpec(asObject(normalized["voice"]))

	return doc, nil
}

func buildCommand(raw any) (Command, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Command{}, fmt.Errorf("%w: command record must be a mapping", errs.ErrNormalization)
	}
	actions, err := buildActionList(m["actions"])
	if err != nil {
		return Command{}, err
	}
	c := Command{
		Name:        getString(m, "name", ""),
		Description: getString(m, "description", ""),
		Options:     asSlice(m["options"]),
	}
	for _, subRaw := range asSlice(m["subcommands"]) {
		sub, err := buildCommand(subRaw)
		if err != nil {
			return Command{}, err
		}
		c.Subcommands = append(c.Subcommands, sub)
	}
	c.Actions = actions
	return c, nil
}

func buildFlow(raw any) (Flow, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Flow{}, fmt.Errorf("%w: flow record must be a mapping", errs.ErrNormalization)
	}
	actions, err := buildActionList(m["actions"])
	if err != nil {
		return Flow{}, err
	}
	f := Flow{
		Name:    getString(m, "name", ""),
		Returns: getString(m, "returns", ""),
		Actions: actions,
	}
	for _, pRaw := range asSlice(m["parameters"]) {
		pm, ok := pRaw.(map[string]any)
		if !ok {
			return Flow{}, fmt.Errorf("%w: flow parameter must be a mapping", errs.ErrNormalization)
		}
		f.Parameters = append(f.Parameters, Parameter{
			Name:     getString(pm, "name", ""),
			Type:     getString(pm, "type", "any"),
			Required: getBool(pm, "required", false),
			Default:  pm["default"],
		})
	}
	return f, nil
}

func buildCronJob(raw any) (CronJob, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return CronJob{}, fmt.Errorf("%w: cron job record must be a mapping", errs.ErrNormalization)
	}
	actions, err := buildActionList(m["actions"])
	if err != nil {
		return CronJob{}, err
	}
	return CronJob{
		Name:     getString(m, "name", ""),
		Cron:     getString(m, "cron", ""),
		Timezone: getString(m, "timezone", ""),
		Enabled:  getBool(m, "enabled", true),
		When:     getString(m, "when", ""),
		Actions:  actions,
	}, nil
}

func buildAutomodRule(raw any) (AutomodRule, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return AutomodRule{}, fmt.Errorf("%w: automod rule record must be a mapping", errs.ErrNormalization)
	}
	actions, err := buildActionList(m["actions"])
	if err != nil {
		return AutomodRule{}, err
	}
	escalation, err := buildActionList(m["escalation"])
	if err != nil {
		return AutomodRule{}, err
	}
	r := AutomodRule{
		Name:       getString(m, "name", ""),
		Enabled:    getBool(m, "enabled", true),
		When:       getString(m, "when", ""),
		Actions:    actions,
		Escalation: escalation,
	}

	var triggerRaws []any
	if t, ok := m["trigger"]; ok {
		if list, ok := t.([]any); ok {
			triggerRaws = list
		} else {
			triggerRaws = []any{t}
		}
	}
	for _, tr := range triggerRaws {
		trig, err := buildTrigger(tr)
		if err != nil {
			return AutomodRule{}, err
		}
		r.Triggers = append(r.Triggers, trig)
	}

	if ex, ok := m["exempt"].(map[string]any); ok {
		r.Exempt = Exempt{
			Users:       asStringSlice(ex["users"]),
			Roles:       asStringSlice(ex["roles"]),
			Channels:    asStringSlice(ex["channels"]),
			Permissions: asStringSlice(ex["permissions"]),
		}
	}
	return r, nil
}

// buildTrigger accepts both the explicit form {type: keyword,
// keywords: […]} and the shorthand form {keyword: {keywords: […]}},
// mirroring the action-shorthand folding of C1 since the spec's
// trigger catalogue follows the same "tag + params" shape.
func buildTrigger(raw any) (Trigger, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Trigger{}, fmt.Errorf("%w: automod trigger must be a mapping", errs.ErrNormalization)
	}
	if kind := getString(m, "type", ""); kind != "" {
		params := make(map[string]any, len(m))
		for k, v := range m {
			if k == "type" {
				continue
			}
			params[k] = v
		}
		return Trigger{Kind: kind, Params: params}, nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if sub, ok := m[k].(map[string]any); ok {
			return Trigger{Kind: k, Params: sub}, nil
		}
		return Trigger{Kind: k, Params: map[string]any{}}, nil
	}
	return Trigger{}, fmt.Errorf("%w: empty automod trigger", errs.ErrNormalization)
}

func buildComponentTemplate(raw any, kind string) (ComponentTemplate, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return ComponentTemplate{}, fmt.Errorf("%w: component template must be a mapping", errs.ErrNormalization)
	}
	actions, err := buildActionList(m["actions"])
	if err != nil {
		return ComponentTemplate{}, err
	}
	fields := make(map[string]any, len(m))
	for k, v := range m {
		if k == "name" || k == "actions" {
			continue
		}
		fields[k] = v
	}
	return ComponentTemplate{
		Name:    getString(m, "name", ""),
		Kind:    kind,
		Fields:  fields,
		Actions: actions,
	}, nil
}

func buildStateSpec(m map[string]any) StateSpec {
	var st StateSpec
	if vars, ok := m["variables"].(map[string]any); ok {
		for _, name := range sortedKeysOf(vars) {
			vm, ok := vars[name].(map[string]any)
			if !ok {
				continue
			}
			st.Variables = append(st.Variables, Variable{
				Name:    name,
				Type:    getString(vm, "type", "any"),
				Scope:   getString(vm, "scope", "global"),
				Default: vm["default"],
			})
		}
	}
	if tables, ok := m["tables"].(map[string]any); ok {
		for _, name := range sortedKeysOf(tables) {
			tm, ok := tables[name].(map[string]any)
			if !ok {
				continue
			}
			td := TableDef{Name: name}
			for _, colRaw := range asSlice(tm["columns"]) {
				cm, ok := colRaw.(map[string]any)
				if !ok {
					continue
				}
				td.Columns = append(td.Columns, Column{
					Name:    getString(cm, "name", ""),
					Type:    getString(cm, "type", "string"),
					Primary: getBool(cm, "primary", false),
					Unique:  getBool(cm, "unique", false),
					Index:   getBool(cm, "index", false),
				})
			}
			for _, idxRaw := range asSlice(tm["indexes"]) {
				td.CompositeIndexes = append(td.CompositeIndexes, asStringSlice(idxRaw))
			}
			st.Tables = append(st.Tables, td)
		}
	}
	return st
}

func buildVoiceSpec(m map[string]any) VoiceSpec {
	return VoiceSpec{
		MaxQueueSize:  getInt(m, "max_queue_size", 100),
		DefaultVolume: getInt(m, "default_volume", 100),
	}
}

// BuildActions converts a normalized nested action-list value (as
// found under a control verb's params, e.g. flow_if's "then") into
// typed actions. Exported so the flow engine can lazily build the
// branches it walks without re-running normalization.
func BuildActions(v any) ([]Action, error) {
	return buildActionList(v)
}

// BuildActionCases converts flow_switch's normalized "cases" mapping
// (case value -> normalized action list) into typed per-case actions.
func BuildActionCases(v any) (map[string][]Action, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, nil
	}
	out := make(map[string][]Action, len(m))
	for k, raw := range m {
		list, err := buildActionList(raw)
		if err != nil {
			return nil, err
		}
		out[k] = list
	}
	return out, nil
}

func buildActionList(v any) ([]Action, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a normalized action list", errs.ErrNormalization)
	}
	out := make([]Action, 0, len(list))
	for _, raw := range list {
		a, err := buildAction(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func buildAction(raw any) (Action, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Action{}, fmt.Errorf("%w: normalized action must be a mapping", errs.ErrNormalization)
	}
	verb, _ := m["verb"].(string)
	if verb == "" {
		return Action{}, fmt.Errorf("%w: normalized action missing verb", errs.ErrNormalization)
	}
	params, _ := m["params"].(map[string]any)
	errorHandler, err := buildActionList(m["error_handler"])
	if err != nil {
		return Action{}, err
	}
	return Action{
		Verb:         verb,
		Params:       params,
		When:         getString(m, "when", ""),
		ErrorHandler: errorHandler,
	}, nil
}

// ─── generic accessors over the plain normalized tree ───

func asObject(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asStringSlice(v any) []string {
	list := asSlice(v)
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func getString(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return def
}

func getBool(m map[string]any, key string, def bool) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return def
}

func getInt(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}

func sortedKeysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load parses, normalizes, and builds a spec document from raw YAML
// bytes in one step.
func Load(data []byte) (*Document, error) {
	raw, err := Decode(data)
	if err != nil {
		return nil, err
	}
	normalized, err := Normalize(raw)
	if err != nil {
		return nil, err
	}
	return Build(normalized)
}
