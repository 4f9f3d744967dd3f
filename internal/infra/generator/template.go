package generator

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"text/template"

	"inbox_monitor/internal/domain/inbound"
	"inbox_monitor/internal/domain/monitor"
)

const DefaultReplyTemplate = "Hello {{.SenderName}},\n\nThank you for your message \"{{.Subject}}\". I will get back to you as soon as possible.\n"

// TemplateData is what a reply template can reference.
type TemplateData struct {
	SenderName    string
	SenderAddress string
	Subject       string
	MonitorID     string
}

func dataFor(m monitor.Monitor, item inbound.Item) TemplateData {
	d := TemplateData{
		SenderAddress: monitor.Address(item.Sender),
		Subject:       item.Subject,
		MonitorID:     m.ID,
	}
	if a, err := mail.ParseAddress(item.Sender); err == nil && a.Name != "" {
		d.SenderName = a.Name
	} else {
		d.SenderName, _, _ = strings.Cut(d.SenderAddress, "@")
	}
	return d
}

// Template renders each monitor's reply_template with text/template.
// Parsed templates are cached by source text.
type Template struct {
	cache sync.Map // string -> *template.Template
}

func NewTemplate() *Template { return &Template{} }

func (g *Template) Generate(ctx context.Context, m monitor.Monitor, item inbound.Item) (string, error) {
	src := m.ReplyTemplate
	if strings.TrimSpace(src) == "" {
		src = DefaultReplyTemplate
	}
	tmpl, err := g.parse(src)
	if err != nil {
		return "", fmt.Errorf("invalid reply template for monitor %s: %w", m.ID, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, dataFor(m, item)); err != nil {
		return "", fmt.Errorf("failed to render reply for monitor %s: %w", m.ID, err)
	}
	return b.String(), nil
}

func (g *Template) parse(src string) (*template.Template, error) {
	if t, ok := g.cache.Load(src); ok {
		return t.(*template.Template), nil
	}
	t, err := template.New("reply").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, err
	}
	g.cache.Store(src, t)
	return t, nil
}
