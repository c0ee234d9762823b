package notify

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"
	"time"
)

const DefaultTemplate = `[EFD bridge {{.Label}}]
{{- if .Channel }}
Channel: {{.Channel}}{{ end }}
{{- if .AssetID }}
Asset: {{.AssetID}}{{ end }}
{{- if .Attribute }}
Attribute: {{.Attribute}}{{ end }}
{{- if .ConfigID }}
PM config: {{.ConfigID}}{{ end }}
{{- if .PMID }}
PM: {{.PMID}}{{ end }}
{{- if .Value }}
Value: {{.Value}}{{ end }}
Time: {{.Time}}
{{- if .Message }}
{{.Message}}{{ end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Label     string
	Channel   string
	AssetID   string
	Attribute string
	ConfigID  string
	PMID      string
	Value     string
	Time      string
	Message   string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("bridge-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to an event.
func (t *Template) Render(event Event) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("notify template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, buildTemplateData(event)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildTemplateData(event Event) TemplateData {
	value := ""
	if event.Value != nil {
		value = fmt.Sprint(event.Value)
	}
	at := event.At
	if at.IsZero() {
		at = time.Now()
	}
	return TemplateData{
		Label:     eventLabel(event.Type),
		Channel:   event.Channel,
		AssetID:   event.AssetID,
		Attribute: event.Attribute,
		ConfigID:  event.ConfigID,
		PMID:      event.PMID,
		Value:     value,
		Time:      at.Format(time.RFC3339),
		Message:   event.Message,
	}
}

func eventLabel(eventType EventType) string {
	switch eventType {
	case EventCounterPublished:
		return "Counter Published"
	case EventPMCreated:
		return "PM Created"
	case EventPMAdvanced:
		return "PM Advanced"
	case EventPMFailed:
		return "PM Failed"
	default:
		return string(eventType)
	}
}
