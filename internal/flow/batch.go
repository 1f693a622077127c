package flow

import (
	"sync"

	"github.com/rakunlabs/flowbot/internal/action"
	"github.com/rakunlabs/flowbot/internal/expr"
	"github.com/rakunlabs/flowbot/internal/spec"
)

// handleBatch evaluates `items` to an array, then runs `each` once per
// item with {as: item, as+"_index": i} added to the vars. concurrency=1
// (the default) runs items sequentially; anything higher runs through a
// bounded worker pool rather than a naive chunked WaitGroup fan-out, so
// a large item count never spawns more than `concurrency` goroutines at
// once.
func (e *Engine) handleBatch(actx *action.Context, a spec.Action, depth int) *action.Result {
	itemsExpr, _ := a.Params["items"].(string)
	v, err := expr.Evaluate(itemsExpr, actx.Vars)
	if err != nil {
		return failed(a.Verb, err)
	}
	items := expr.ToArray(v)

	asName := "item"
	if s, ok := a.Params["as"].(string); ok && s != "" {
		asName = s
	}
	concurrency := 1
	if c, ok := a.Params["concurrency"]; ok {
		if n := int(expr.ToNumber(c)); n > 0 {
			concurrency = n
		}
	}
	eachActions, err := spec.BuildActions(a.Params["each"])
	if err != nil {
		return failed(a.Verb, err)
	}

	allResults := make([][]action.Result, len(items))

	if concurrency <= 1 {
		fr := &frame{depth: depth}
		for i, item := range items {
			if actx.Ctx.Err() != nil || fr.aborted {
				break
			}
			itemActx := batchItemContext(actx, asName, item, i)
			var results []action.Result
			e.walk(itemActx, eachActions, fr, &results, depth)
			allResults[i] = results
		}
		return ok(a.Verb, flattenBatchResults(allResults))
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for i, item := range items {
		if actx.Ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item any) {
			defer wg.Done()
			defer func() { <-sem }()
			itemActx := batchItemContext(actx, asName, item, i)
			fr := &frame{depth: depth}
			var results []action.Result
			e.walk(itemActx, eachActions, fr, &results, depth)
			allResults[i] = results
		}(i, item)
	}
	wg.Wait()

	return ok(a.Verb, flattenBatchResults(allResults))
}

func batchItemContext(actx *action.Context, asName string, item any, index int) *action.Context {
	vars := make(map[string]any, len(actx.Vars)+2)
	for k, v := range actx.Vars {
		vars[k] = v
	}
	vars[asName] = item
	vars[asName+"_index"] = float64(index)
	return &action.Context{
		Ctx: actx.Ctx, Vars: vars, Ident: actx.Ident, Platform: actx.Platform,
		State: actx.State, Store: actx.Store, Voice: actx.Voice, Email: actx.Email,
		InteractionID: actx.InteractionID, InteractionToken: actx.InteractionToken,
		Emit: actx.Emit, Timers: actx.Timers, Components: actx.Components,
	}
}

func flattenBatchResults(batches [][]action.Result) []any {
	out := make([]any, 0, len(batches))
	for _, b := range batches {
		out = append(out, resultsToVars(b))
	}
	return out
}
