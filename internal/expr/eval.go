package expr

import (
	"fmt"
	"strings"
)

// Clock is a seam for deterministic testing of the `timestamp`
// transform; production code uses the default realClock.
type Clock interface {
	Now() int64 // unix seconds, UTC
}

type realClock struct{}

func (realClock) Now() int64 { return nowFunc() }

// DefaultClock is used by Evaluate/Interpolate when no clock is
// supplied through Evaluator.
var DefaultClock Clock = realClock{}

// Evaluate parses and evaluates expr against context, using
// DefaultClock. It is deterministic for a fixed context and clock,
// and never mutates context.
func Evaluate(expression string, context map[string]any) (any, error) {
	return (&Evaluator{Clock: DefaultClock}).Evaluate(expression, context)
}

// Interpolate replaces every `${…}` span in template with the
// stringified result of evaluating its contents against context.
// Characters outside `${…}` spans are preserved verbatim. Unbalanced
// braces return a *SyntaxError (a recoverable error kind).
func Interpolate(template string, context map[string]any) (string, error) {
	return (&Evaluator{Clock: DefaultClock}).Interpolate(template, context)
}

// Evaluator bundles the dependencies an evaluation run needs. The
// zero value uses DefaultClock.
type Evaluator struct {
	Clock Clock
}

func (e *Evaluator) clock() Clock {
	if e.Clock != nil {
		return e.Clock
	}
	return DefaultClock
}

// Evaluate parses and evaluates expression against context.
func (e *Evaluator) Evaluate(expression string, context map[string]any) (any, error) {
	ast, err := parse(expression)
	if err != nil {
		return nil, fmt.Errorf("expr: parse %q: %w", expression, err)
	}
	ev := &evalCtx{vars: context, clock: e.clock()}
	return ev.eval(ast)
}

// Interpolate scans template for `${…}` spans, evaluating each against
// context and stringifying the result.
func (e *Evaluator) Interpolate(template string, context map[string]any) (string, error) {
	var sb strings.Builder
	i := 0
	for i < len(template) {
		start := strings.Index(template[i:], "${")
		if start < 0 {
			sb.WriteString(template[i:])
			break
		}
		start += i
		sb.WriteString(template[i:start])

		depth := 1
		j := start + 2
		for j < len(template) && depth > 0 {
			switch template[j] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					continue
				}
			}
			j++
		}
		if depth != 0 {
			return "", &SyntaxError{Pos: start, Msg: "unbalanced '${' in interpolation"}
		}

		inner := template[start+2 : j]
		val, err := e.Evaluate(inner, context)
		if err != nil {
			return "", err
		}
		sb.WriteString(ToString(val))
		i = j + 1
	}
	return sb.String(), nil
}

// ─── internal evaluation ───

type evalCtx struct {
	vars  map[string]any
	clock Clock
}

func (e *evalCtx) eval(n node) (any, error) {
	switch x := n.(type) {
	case *litNode:
		return x.val, nil
	case *identNode:
		return e.vars[x.name], nil
	case *memberNode:
		base, err := e.eval(x.target)
		if err != nil {
			return nil, err
		}
		return memberAccess(base, x.name), nil
	case *indexNode:
		base, err := e.eval(x.target)
		if err != nil {
			return nil, err
		}
		idx, err := e.eval(x.index)
		if err != nil {
			return nil, err
		}
		return indexAccess(base, idx), nil
	case *callNode:
		return e.evalCall(x)
	case *arrayNode:
		out := make([]any, len(x.elems))
		for i, el := range x.elems {
			v, err := e.eval(el)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *objectNode:
		out := make(map[string]any, len(x.keys))
		for i, k := range x.keys {
			v, err := e.eval(x.vals[i])
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case *unaryNode:
		rhs, err := e.eval(x.rhs)
		if err != nil {
			return nil, err
		}
		switch x.op {
		case tokNot:
			return !Truthy(rhs), nil
		case tokMinus:
			return -ToNumber(rhs), nil
		}
	case *binaryNode:
		return e.evalBinary(x)
	case *ternaryNode:
		cond, err := e.eval(x.cond)
		if err != nil {
			return nil, err
		}
		if Truthy(cond) {
			return e.eval(x.then)
		}
		return e.eval(x.els)
	case *pipeNode:
		return e.evalPipe(x)
	}
	return nil, fmt.Errorf("expr: unhandled node %T", n)
}

func (e *evalCtx) evalBinary(x *binaryNode) (any, error) {
	// Short-circuit boolean operators.
	if x.op == tokAnd {
		lhs, err := e.eval(x.lhs)
		if err != nil {
			return nil, err
		}
		if !Truthy(lhs) {
			return false, nil
		}
		rhs, err := e.eval(x.rhs)
		if err != nil {
			return nil, err
		}
		return Truthy(rhs), nil
	}
	if x.op == tokOr {
		lhs, err := e.eval(x.lhs)
		if err != nil {
			return nil, err
		}
		if Truthy(lhs) {
			return true, nil
		}
		rhs, err := e.eval(x.rhs)
		if err != nil {
			return nil, err
		}
		return Truthy(rhs), nil
	}

	lhs, err := e.eval(x.lhs)
	if err != nil {
		return nil, err
	}
	rhs, err := e.eval(x.rhs)
	if err != nil {
		return nil, err
	}

	switch x.op {
	case tokEq:
		return Equal(lhs, rhs), nil
	case tokNeq:
		return !Equal(lhs, rhs), nil
	case tokLt, tokLe, tokGt, tokGe:
		cmp, ok := Compare(lhs, rhs)
		if !ok {
			return false, nil
		}
		switch x.op {
		case tokLt:
			return cmp < 0, nil
		case tokLe:
			return cmp <= 0, nil
		case tokGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case tokPlus:
		// String concatenation if either side is a string, else numeric add.
		if ls, ok := lhs.(string); ok {
			return ls + ToString(rhs), nil
		}
		if rs, ok := rhs.(string); ok {
			return ToString(lhs) + rs, nil
		}
		return ToNumber(lhs) + ToNumber(rhs), nil
	case tokMinus:
		return ToNumber(lhs) - ToNumber(rhs), nil
	case tokStar:
		return ToNumber(lhs) * ToNumber(rhs), nil
	case tokSlash:
		r := ToNumber(rhs)
		if r == 0 {
			return nil, fmt.Errorf("expr: division by zero")
		}
		return ToNumber(lhs) / r, nil
	case tokPercent:
		r := int64(ToNumber(rhs))
		if r == 0 {
			return nil, fmt.Errorf("expr: modulo by zero")
		}
		return float64(int64(ToNumber(lhs)) % r), nil
	}
	return nil, fmt.Errorf("expr: unhandled operator")
}

func (e *evalCtx) evalCall(x *callNode) (any, error) {
	args := make([]any, len(x.args))
	for i, a := range x.args {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	if x.target == nil {
		// Bare function call: only built-in transform-as-function names
		// double as callable functions (e.g. default(x, y)).
		return callBuiltin(x.name, args, e.clock)
	}
	base, err := e.eval(x.target)
	if err != nil {
		return nil, err
	}
	return applyTransform(x.name, base, args, e.clock)
}

func (e *evalCtx) evalPipe(x *pipeNode) (any, error) {
	src, err := e.eval(x.src)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(x.args))
	for i, a := range x.args {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return applyTransform(x.transform, src, args, e.clock)
}

func memberAccess(base any, name string) any {
	switch x := base.(type) {
	case map[string]any:
		return x[name]
	default:
		return nil
	}
}

func indexAccess(base any, idx any) any {
	switch x := base.(type) {
	case []any:
		i := int(ToNumber(idx))
		if i < 0 {
			i += len(x)
		}
		if i < 0 || i >= len(x) {
			return nil
		}
		return x[i]
	case map[string]any:
		return x[ToString(idx)]
	default:
		return nil
	}
}
