package action

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/rytsh/mugo/templatex"
	"github.com/wneessen/go-mail"
)

// SMTPConfig is the runtime-wide outbound mail configuration, set once
// when the engine starts and shared across every notify_email call.
type SMTPConfig struct {
	Host               string
	Port               int
	Username           string
	Password           string
	From               string
	TLS                bool
	NoTLS              bool
	InsecureSkipVerify bool
}

func registerEmail(r *Registry) {
	r.Register("notify_email", verbNotifyEmail)
}

// verbNotifyEmail sends an SMTP message using the engine's configured
// mail server. to/cc/bcc/subject/body/from are all rendered as Go
// templates against the action's vars before sending, mirroring the
// teacher's email workflow node. A reply_to parameter is not read.
func verbNotifyEmail(actx *Context, params map[string]any) (any, error) {
	if actx.Email == nil {
		return nil, fmt.Errorf("notify_email: no SMTP configuration present")
	}
	sc := actx.Email

	to, err := requireString(params, "to")
	if err != nil {
		return nil, err
	}
	subject, err := requireString(params, "subject")
	if err != nil {
		return nil, err
	}
	body, err := requireString(params, "body")
	if err != nil {
		return nil, err
	}

	to, err = renderEmailTemplate("to", to, actx.Vars)
	if err != nil {
		return nil, fmt.Errorf("notify_email: %w", err)
	}
	subject, err = renderEmailTemplate("subject", subject, actx.Vars)
	if err != nil {
		return nil, fmt.Errorf("notify_email: %w", err)
	}
	body, err = renderEmailTemplate("body", body, actx.Vars)
	if err != nil {
		return nil, fmt.Errorf("notify_email: %w", err)
	}
	cc, err := renderEmailTemplate("cc", strOr(params, "cc", ""), actx.Vars)
	if err != nil {
		return nil, fmt.Errorf("notify_email: %w", err)
	}
	bcc, err := renderEmailTemplate("bcc", strOr(params, "bcc", ""), actx.Vars)
	if err != nil {
		return nil, fmt.Errorf("notify_email: %w", err)
	}

	contentType := strOr(params, "content_type", "text/plain")

	from := sc.From
	if override := strOr(params, "from", ""); override != "" {
		rendered, err := renderEmailTemplate("from", override, actx.Vars)
		if err != nil {
			return nil, fmt.Errorf("notify_email: %w", err)
		}
		from = rendered
	}
	if from == "" {
		return nil, fmt.Errorf("notify_email: no 'from' address configured")
	}

	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("notify_email: set from: %w", err)
	}
	if err := m.To(splitEmailAddresses(to)...); err != nil {
		return nil, fmt.Errorf("notify_email: set to: %w", err)
	}
	if addrs := splitEmailAddresses(cc); len(addrs) > 0 {
		if err := m.Cc(addrs...); err != nil {
			return nil, fmt.Errorf("notify_email: set cc: %w", err)
		}
	}
	if addrs := splitEmailAddresses(bcc); len(addrs) > 0 {
		if err := m.Bcc(addrs...); err != nil {
			return nil, fmt.Errorf("notify_email: set bcc: %w", err)
		}
	}
	m.Subject(subject)
	m.SetBodyString(mail.ContentType(contentType), body)

	opts := []mail.Option{
		mail.WithPort(sc.Port),
		mail.WithTimeout(30 * time.Second),
	}
	if sc.Username != "" || sc.Password != "" {
		opts = append(opts, mail.WithSMTPAuth(mail.SMTPAuthPlain), mail.WithUsername(sc.Username), mail.WithPassword(sc.Password))
	}
	if sc.NoTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	} else {
		tlsConfig := &tls.Config{ServerName: sc.Host, InsecureSkipVerify: sc.InsecureSkipVerify}
		opts = append(opts, mail.WithTLSConfig(tlsConfig))
		if sc.TLS {
			opts = append(opts, mail.WithSSL(), mail.WithTLSPolicy(mail.TLSMandatory))
		} else {
			opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
		}
	}

	c, err := mail.NewClient(sc.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify_email: create client: %w", err)
	}

	if err := c.DialAndSend(m); err != nil {
		return map[string]any{"status": "failed", "error": err.Error()}, nil
	}
	return map[string]any{"status": "sent"}, nil
}

func renderEmailTemplate(name, tmplText string, vars map[string]any) (string, error) {
	if tmplText == "" {
		return "", nil
	}
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

func splitEmailAddresses(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, ";", ",")
	parts := strings.Split(s, ",")
	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			addrs = append(addrs, p)
		}
	}
	return addrs
}
