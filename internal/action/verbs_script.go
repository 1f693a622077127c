package action

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

func registerScript(r *Registry) {
	r.Register("script", verbScript)
}

// verbScript runs a sandboxed goja snippet against the action's
// evaluation vars. Only pure helpers are installed (toString,
// jsonParse, btoa/atob); no Go function bridge lets the script reach
// storage or the platform, so it stays side-effect-free as required.
func verbScript(actx *Context, params map[string]any) (any, error) {
	code, err := requireString(params, "code")
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	if err := setupScriptVM(vm, actx.Vars); err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}

	val, err := vm.RunString("(function(){" + code + "})()")
	if err != nil {
		return nil, fmt.Errorf("script: execution error: %w", err)
	}
	return val.Export(), nil
}

func setupScriptVM(vm *goja.Runtime, vars map[string]any) error {
	for k, v := range vars {
		if err := vm.Set(k, v); err != nil {
			return fmt.Errorf("bind %q: %w", k, err)
		}
	}

	_ = vm.Set("toString", func(v goja.Value) string {
		return fmt.Sprintf("%v", v.Export())
	})
	_ = vm.Set("jsonParse", func(s string) (any, error) {
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	_ = vm.Set("btoa", func(s string) string {
		return base64.StdEncoding.EncodeToString([]byte(s))
	})
	_ = vm.Set("atob", func(s string) (string, error) {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(b), nil
	})
	return nil
}
