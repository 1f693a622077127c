package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rytsh/mugo/templatex"
	"github.com/worldline-go/klient"
)

func registerWebhook(r *Registry) {
	r.Register("webhook", verbWebhook)
}

// verbWebhook POSTs (or otherwise sends) a Go-template-rendered body to
// a URL. url, header values, and body are all rendered against
// actx.Vars before the request is built, mirroring the teacher's
// http_request workflow node; method is used as given, upper-cased.
func verbWebhook(actx *Context, params map[string]any) (any, error) {
	urlTmpl, err := requireString(params, "url")
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(strOr(params, "method", "POST"))
	timeout := time.Duration(numOr(params, "timeout", 30)) * time.Second

	headers := map[string]string{}
	if h, ok := params["headers"].(map[string]any); ok {
		for k, v := range h {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}

	resolvedURL, err := renderWebhookTemplate("url", urlTmpl, actx.Vars)
	if err != nil {
		return nil, fmt.Errorf("webhook: %w", err)
	}

	var body io.Reader
	if bodyTmpl, ok := params["body"].(string); ok && bodyTmpl != "" {
		rendered, err := renderWebhookTemplate("body", bodyTmpl, actx.Vars)
		if err != nil {
			return nil, fmt.Errorf("webhook: %w", err)
		}
		body = strings.NewReader(rendered)
	} else if bodyData, ok := params["body"]; ok && bodyData != nil {
		b, err := json.Marshal(bodyData)
		if err != nil {
			return nil, fmt.Errorf("webhook: marshal body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	reqCtx, cancel := context.WithTimeout(actx.Ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, resolvedURL, body)
	if err != nil {
		return nil, fmt.Errorf("webhook: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, tmpl := range headers {
		val, err := renderWebhookTemplate("header:"+k, tmpl, actx.Vars)
		if err != nil {
			return nil, fmt.Errorf("webhook: %w", err)
		}
		req.Header.Set(k, val)
	}

	client, err := klient.New(
		klient.WithDisableBaseURLCheck(true),
		klient.WithDisableEnvValues(true),
		klient.WithDisableRetry(!boolOr(params, "retry", false)),
	)
	if err != nil {
		return nil, fmt.Errorf("webhook: build client: %w", err)
	}

	resp, err := client.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("webhook: read response: %w", err)
	}

	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		parsed = string(respBody)
	}

	return map[string]any{
		"response":    parsed,
		"status_code": resp.StatusCode,
	}, nil
}

func renderWebhookTemplate(name, tmplText string, vars map[string]any) (string, error) {
	tpl := templatex.New()

	var buf bytes.Buffer
	if err := tpl.Execute(
		templatex.WithIO(&buf),
		templatex.WithContent(tmplText),
		templatex.WithData(vars),
	); err != nil {
		return "", fmt.Errorf("template %q: %w", name, err)
	}
	return buf.String(), nil
}
