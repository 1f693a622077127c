package spec

import (
	"fmt"
	"sort"

	"github.com/rakunlabs/flowbot/internal/errs"
)

var reservedActionFields = map[string]bool{"when": true, "error_handler": true}

// nestedListSlots names, per verb, the parameter fields that hold a
// nested action list (C1 rule 4). flow_switch is handled separately
// since its "cases" slot is a mapping of lists rather than a bare list.
var nestedListSlots = map[string][]string{
	"flow_if":    {"then", "else"},
	"flow_while": {"do"},
	"repeat":     {"do"},
	"parallel":   {"actions"},
	"batch":      {"each"},
	"try":        {"do", "catch", "finally"},
}

// normalizeAction applies C1 rules 1-4 to a single raw action record,
// producing the canonical shape {verb, params, when?, error_handler?}.
// It is written to be a fixed point: feeding it an already-canonical
// record (as a second Normalize pass does) reproduces the same record.
func normalizeAction(raw any) (map[string]any, error) {
	om, err := asMapping(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: action record must be a mapping", errs.ErrNormalization)
	}

	var verb string
	params := map[string]any{}

	if v, ok := om.get("verb"); ok {
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%w: verb must be a non-empty string", errs.ErrNormalization)
		}
		verb = s

		if pv, ok := om.get("params"); ok {
			pm, err := asMapping(pv)
			if err != nil {
				return nil, err
			}
			if err := mergeParams(params, pm); err != nil {
				return nil, err
			}
		}
		for _, k := range om.orderedKeys() {
			if k == "verb" || k == "params" || reservedActionFields[k] {
				continue
			}
			plain, err := plainify(om.getOr(k, nil))
			if err != nil {
				return nil, err
			}
			params[k] = plain
		}
	} else {
		for _, k := range om.orderedKeys() {
			if reservedActionFields[k] {
				continue
			}
			verb = k
			val := om.getOr(k, nil)
			switch mv := val.(type) {
			case *orderedMap:
				if err := mergeParams(params, mv); err != nil {
					return nil, err
				}
			case map[string]any:
				if err := mergeParams(params, fromPlainMap(mv)); err != nil {
					return nil, err
				}
			}
			// any other value type is discarded: "no parameters".
			break
		}
		if verb == "" {
			return nil, fmt.Errorf("%w: action record has no verb field", errs.ErrNormalization)
		}
	}

	result := map[string]any{"verb": verb, "params": params}

	if w, ok := om.get("when"); ok {
		if s, ok := w.(string); ok {
			result["when"] = s
		}
	}
	if eh, ok := om.get("error_handler"); ok {
		list, err := normalizeActionList(eh)
		if err != nil {
			return nil, err
		}
		result["error_handler"] = list
	}

	if slots, ok := nestedListSlots[verb]; ok {
		for _, slot := range slots {
			if v, present := params[slot]; present {
				list, err := normalizeActionList(v)
				if err != nil {
					return nil, err
				}
				params[slot] = list
			}
		}
	}
	if verb == "flow_switch" {
		if cv, ok := params["cases"]; ok {
			cases, err := normalizeActionCaseMap(cv)
			if err != nil {
				return nil, err
			}
			params["cases"] = cases
		}
		if dv, ok := params["default"]; ok {
			list, err := normalizeActionList(dv)
			if err != nil {
				return nil, err
			}
			params["default"] = list
		}
	}

	return result, nil
}

func mergeParams(params map[string]any, src *orderedMap) error {
	for _, k := range src.orderedKeys() {
		plain, err := plainify(src.getOr(k, nil))
		if err != nil {
			return err
		}
		params[k] = plain
	}
	return nil
}

func normalizeActionList(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected a list of actions", errs.ErrNormalization)
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		na, err := normalizeAction(item)
		if err != nil {
			return nil, err
		}
		out = append(out, na)
	}
	return out, nil
}

// normalizeActionCaseMap normalizes flow_switch's `cases` slot: a
// mapping from case value to an action list.
func normalizeActionCaseMap(v any) (map[string]any, error) {
	om, err := asMapping(v)
	if err != nil {
		return nil, fmt.Errorf("%w: flow_switch.cases must be a mapping", errs.ErrNormalization)
	}
	out := map[string]any{}
	for _, k := range om.orderedKeys() {
		list, err := normalizeActionList(om.getOr(k, nil))
		if err != nil {
			return nil, err
		}
		out[k] = list
	}
	return out, nil
}

// coerceCollection implements C1 rule 5: a collection field given as a
// name-keyed mapping is rewritten into an ordered sequence, sorting on
// the original key for a deterministic (if arbitrary, since YAML
// mappings carry no inherent sibling order once two independent loads
// are compared) element order. A field already given as a sequence
// passes through untouched.
func coerceCollection(v any, idField string) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []any:
		return x, nil
	case *orderedMap:
		keys := append([]string(nil), x.keys...)
		sort.Strings(keys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, ensureFieldName(x.values[k], idField, k))
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			out = append(out, ensureFieldName(x[k], idField, k))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: expected a sequence or name-keyed mapping", errs.ErrNormalization)
	}
}

func ensureFieldName(rec any, idField, key string) any {
	switch r := rec.(type) {
	case *orderedMap:
		if _, ok := r.get(idField); !ok {
			r.set(idField, key)
		}
		return r
	case map[string]any:
		if _, ok := r[idField]; !ok {
			r[idField] = key
		}
		return r
	default:
		return rec
	}
}

// normalizeRecord plainifies every field of rec except actionFields,
// which are normalized as action lists in place. It covers every
// record kind the C1 recursion rule names except commands, whose
// nested subcommands need their own recursive pass (see
// normalizeCommandRecord).
func normalizeRecord(rec any, actionFields ...string) (map[string]any, error) {
	om, err := asMapping(rec)
	if err != nil {
		return nil, err
	}
	isActionField := make(map[string]bool, len(actionFields))
	for _, f := range actionFields {
		isActionField[f] = true
	}

	out := map[string]any{}
	for _, k := range om.orderedKeys() {
		if isActionField[k] {
			continue
		}
		pv, err := plainify(om.getOr(k, nil))
		if err != nil {
			return nil, err
		}
		out[k] = pv
	}
	for _, f := range actionFields {
		if v, ok := om.get(f); ok {
			list, err := normalizeActionList(v)
			if err != nil {
				return nil, err
			}
			out[f] = list
		}
	}
	return out, nil
}

// normalizeCommandRecord normalizes a command or subcommand record:
// its own `actions` list, plus a recursive pass over any
// `subcommands`.
func normalizeCommandRecord(rec any) (map[string]any, error) {
	om, err := asMapping(rec)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, k := range om.orderedKeys() {
		if k == "actions" || k == "subcommands" {
			continue
		}
		pv, err := plainify(om.getOr(k, nil))
		if err != nil {
			return nil, err
		}
		out[k] = pv
	}
	if v, ok := om.get("actions"); ok {
		list, err := normalizeActionList(v)
		if err != nil {
			return nil, err
		}
		out["actions"] = list
	}
	if v, ok := om.get("subcommands"); ok {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: subcommands must be a list", errs.ErrNormalization)
		}
		subs := make([]any, len(list))
		for i, s := range list {
			ns, err := normalizeCommandRecord(s)
			if err != nil {
				return nil, err
			}
			subs[i] = ns
		}
		out["subcommands"] = subs
	}
	return out, nil
}

func normalizeCollectionOf(v any, idField string, normalizeOne func(any) (map[string]any, error)) ([]any, error) {
	list, err := coerceCollection(v, idField)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(list))
	for i, rec := range list {
		nr, err := normalizeOne(rec)
		if err != nil {
			return nil, err
		}
		out[i] = nr
	}
	return out, nil
}

// Normalize applies C1 to a whole spec document tree (as produced by
// Decode, or fed back through a second pass) and returns a fully plain
// canonical tree. Applying Normalize twice in a row yields the same
// result (normalization idempotence, §8).
func Normalize(raw any) (map[string]any, error) {
	top, err := asMapping(raw)
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}

	for _, key := range []string{"identity", "presence", "intents"} {
		if v, ok := top.get(key); ok {
			pv, err := plainify(v)
			if err != nil {
				return nil, err
			}
			doc[key] = pv
		}
	}

	if v, ok := top.get("commands"); ok {
		norm, err := normalizeCollectionOf(v, "name", normalizeCommandRecord)
		if err != nil {
			return nil, err
		}
		doc["commands"] = norm
	}
	if v, ok := top.get("context_menus"); ok {
		norm, err := normalizeCollectionOf(v, "name", func(r any) (map[string]any, error) {
			return normalizeRecord(r, "actions")
		})
		if err != nil {
			return nil, err
		}
		doc["context_menus"] = norm
	}
	if v, ok := top.get("events"); ok {
		norm, err := normalizeCollectionOf(v, "event", func(r any) (map[string]any, error) {
			return normalizeRecord(r, "actions")
		})
		if err != nil {
			return nil, err
		}
		doc["events"] = norm
	}
	if v, ok := top.get("flows"); ok {
		norm, err := normalizeCollectionOf(v, "name", func(r any) (map[string]any, error) {
			return normalizeRecord(r, "actions")
		})
		if err != nil {
			return nil, err
		}
		doc["flows"] = norm
	}

	if v, ok := top.get("scheduler"); ok {
		schedMap, err := asMapping(v)
		if err != nil {
			return nil, err
		}
		sdoc := map[string]any{}
		if jv, ok := schedMap.get("jobs"); ok {
			norm, err := normalizeCollectionOf(jv, "name", func(r any) (map[string]any, error) {
				return normalizeRecord(r, "actions")
			})
			if err != nil {
				return nil, err
			}
			sdoc["jobs"] = norm
		}
		doc["scheduler"] = sdoc
	}

	if v, ok := top.get("automod"); ok {
		amMap, err := asMapping(v)
		if err != nil {
			return nil, err
		}
		adoc := map[string]any{}
		if rv, ok := amMap.get("rules"); ok {
			norm, err := normalizeCollectionOf(rv, "name", func(r any) (map[string]any, error) {
				return normalizeRecord(r, "actions", "escalation")
			})
			if err != nil {
				return nil, err
			}
			adoc["rules"] = norm
		}
		doc["automod"] = adoc
	}

	if v, ok := top.get("components"); ok {
		compMap, err := asMapping(v)
		if err != nil {
			return nil, err
		}
		cdoc := map[string]any{}
		for _, grp := range []string{"buttons", "selects", "modals"} {
			if gv, ok := compMap.get(grp); ok {
				norm, err := normalizeCollectionOf(gv, "name", func(r any) (map[string]any, error) {
					return normalizeRecord(r, "actions")
				})
				if err != nil {
					return nil, err
				}
				cdoc[grp] = norm
			}
		}
		doc["components"] = cdoc
	}

	for _, key := range []string{"state", "voice"} {
		if v, ok := top.get(key); ok {
			pv, err := plainify(v)
			if err != nil {
				return nil, err
			}
			doc[key] = pv
		}
	}

	return doc, nil
}
