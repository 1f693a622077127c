package action

import (
	"fmt"

	"github.com/rakunlabs/flowbot/internal/store"
)

func registerStateVerbs(r *Registry) {
	r.Register("set", verbSet)
	r.Register("set_variable", verbSet)
	r.Register("increment", verbIncrement)
	r.Register("db_insert", verbDBInsert)
	r.Register("db_query", verbDBQuery)
	r.Register("db_update", verbDBUpdate)
	r.Register("db_delete", verbDBDelete)
}

func verbSet(actx *Context, params map[string]any) (any, error) {
	name, err := requireString(params, "name")
	if err != nil {
		return nil, err
	}
	if err := actx.State.Set(actx.Ctx, name, actx.Ident, params["value"]); err != nil {
		return nil, fmt.Errorf("set_variable: %w", err)
	}
	return params["value"], nil
}

func verbIncrement(actx *Context, params map[string]any) (any, error) {
	name, err := requireString(params, "name")
	if err != nil {
		return nil, err
	}
	delta := numOr(params, "by", 1)
	next, err := actx.State.Increment(actx.Ctx, name, actx.Ident, delta)
	if err != nil {
		return nil, fmt.Errorf("increment: %w", err)
	}
	return next, nil
}

// verbDBInsert inserts a row; a string primary column left out of the
// row is filled in with a generated ULID by the store backend.
func verbDBInsert(actx *Context, params map[string]any) (any, error) {
	table, err := requireString(params, "table")
	if err != nil {
		return nil, err
	}
	row, _ := params["row"].(map[string]any)
	if err := actx.Store.Insert(actx.Ctx, table, row); err != nil {
		return nil, fmt.Errorf("db_insert: %w", err)
	}
	return nil, nil
}

func verbDBQuery(actx *Context, params map[string]any) (any, error) {
	table, err := requireString(params, "table")
	if err != nil {
		return nil, err
	}
	where, _ := params["where"].(map[string]any)
	q := store.Query{
		Where:   where,
		Select:  strSlice(params, "select"),
		OrderBy: str(params, "order_by"),
		Limit:   int(numOr(params, "limit", 0)),
		Offset:  int(numOr(params, "offset", 0)),
	}
	rows, err := actx.Store.Query(actx.Ctx, table, q)
	if err != nil {
		return nil, fmt.Errorf("db_query: %w", err)
	}
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out, nil
}

func verbDBUpdate(actx *Context, params map[string]any) (any, error) {
	table, err := requireString(params, "table")
	if err != nil {
		return nil, err
	}
	where, _ := params["where"].(map[string]any)
	patch, _ := params["patch"].(map[string]any)
	n, err := actx.Store.Update(actx.Ctx, table, where, patch)
	if err != nil {
		return nil, fmt.Errorf("db_update: %w", err)
	}
	return n, nil
}

func verbDBDelete(actx *Context, params map[string]any) (any, error) {
	table, err := requireString(params, "table")
	if err != nil {
		return nil, err
	}
	where, _ := params["where"].(map[string]any)
	n, err := actx.Store.DeleteRows(actx.Ctx, table, where)
	if err != nil {
		return nil, fmt.Errorf("db_delete: %w", err)
	}
	return n, nil
}
