package notify

import (
	"bytes"
	"errors"
	"text/template"

	alarms "farm-host/internal/alarms/domain"
)

// DefaultTemplate is the stock notification text.
const DefaultTemplate = `[Alert {{.Severity}}] {{.Code}}
Device: {{.Device}}
Time: {{.TS}}
{{.Message}}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	TS       string
	Device   string
	Severity string
	Code     string
	Message  string
}

func buildTemplateData(alert alarms.Alert) TemplateData {
	return TemplateData{
		TS:       alert.TS,
		Device:   alert.Device,
		Severity: alert.Severity,
		Code:     alert.Code,
		Message:  alert.Message,
	}
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to
// DefaultTemplate when tpl is empty.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alert-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alert template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
