// Package spec holds the normalized, immutable in-memory representation
// of a bot spec document plus the Normalizer (C1) that builds it from the
// raw tree produced by a YAML decode.
package spec

// Action is a single canonical action: a verb tag, a bag of
// verb-specific parameters, and the two reserved cross-cutting fields.
// Params intentionally stays a loosely-typed map — the source models
// actions as runtime bags of parameters whose shape depends on verb,
// and every field may be a literal or an expression string, so a
// per-verb struct would just be a parallel copy of this map with extra
// steps.
type Action struct {
	Verb         string
	Params       map[string]any
	When         string
	ErrorHandler []Action
}

// Parameter describes one flow parameter declaration.
type Parameter struct {
	Name     string
	Type     string // string|number|boolean|array|object|any
	Required bool
	Default  any
}

type Flow struct {
	Name       string
	Parameters []Parameter
	Returns    string
	Actions    []Action
}

type Command struct {
	Name        string
	Description string
	Options     []any
	Subcommands []Command
	Actions     []Action
}

type ContextMenu struct {
	Name    string
	Kind    string // user|message
	Actions []Action
}

type EventHandler struct {
	Event    string
	When     string
	Debounce string
	Throttle string
	Actions  []Action
}

type CronJob struct {
	Name     string
	Cron     string
	Timezone string
	Enabled  bool
	When     string
	Actions  []Action
}

type Exempt struct {
	Users       []string
	Roles       []string
	Channels    []string
	Permissions []string
}

type Trigger struct {
	Kind   string
	Params map[string]any
}

type AutomodRule struct {
	Name       string
	Enabled    bool
	Triggers   []Trigger
	Exempt     Exempt
	When       string
	Actions    []Action
	Escalation []Action
}

type ComponentTemplate struct {
	Name    string
	Kind    string // button|select|modal
	Fields  map[string]any
	Actions []Action
}

type Components struct {
	Buttons []ComponentTemplate
	Selects []ComponentTemplate
	Modals  []ComponentTemplate
}

type Variable struct {
	Name    string
	Type    string
	Scope   string // global|guild|channel|user|member
	Default any
}

type Column struct {
	Name   string
	Type   string // string|number|boolean|json|timestamp
	Primary bool
	Unique  bool
	Index   bool
}

type TableDef struct {
	Name            string
	Columns         []Column
	CompositeIndexes [][]string
}

type StateSpec struct {
	Variables []Variable
	Tables    []TableDef
}

type VoiceSpec struct {
	MaxQueueSize int
	DefaultVolume int
}

// Document is the fully normalized, immutable spec tree.
type Document struct {
	Identity     map[string]any
	Presence     map[string]any
	Intents      []string
	Commands     []Command
	ContextMenus []ContextMenu
	Events       []EventHandler
	Flows        []Flow
	SchedulerJobs []CronJob
	AutomodRules []AutomodRule
	Components   Components
	State        StateSpec
	Voice        VoiceSpec
}
