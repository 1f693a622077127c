package component

import (
	"bytes"
	"log/slog"

	"github.com/rytsh/mugo/fstore"
	_ "github.com/rytsh/mugo/fstore/registry"
	"github.com/rytsh/mugo/templatex"

	"github.com/rakunlabs/flowbot/internal/expr"
)

// renderString runs s through C2 interpolation first, then through a
// text/template pass with the standard mugo function map, matching
// the teacher's two-layer render.ExecuteWithFuncs: this gives template
// authors string helpers (trimSuffix, title, ...) on top of the fixed
// ${…} transform algebra without extending C2 itself.
func renderString(s string, vars map[string]any) (string, error) {
	interpolated, err := expr.Interpolate(s, vars)
	if err != nil {
		return "", err
	}
	if !containsTemplateSyntax(interpolated) {
		return interpolated, nil
	}

	tpl := templatex.New(
		templatex.WithAddFuncMapWithOpts(func(o templatex.Option) map[string]any {
			return fstore.FuncMap(
				fstore.WithLog(slog.Default()),
				fstore.WithTrust(true),
				fstore.WithExecuteTemplate(o.T),
			)
		}),
	)

	var buf bytes.Buffer
	if err := tpl.Execute(
		templatex.WithIO(&buf),
		templatex.WithContent(interpolated),
		templatex.WithData(vars),
	); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func containsTemplateSyntax(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '{' && s[i+1] == '{' {
			return true
		}
	}
	return false
}
