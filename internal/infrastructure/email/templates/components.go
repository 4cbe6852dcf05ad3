package templates

import (
	"bytes"
	"html/template"
)

type ButtonProps struct {
	Text string
	URL  string
}

var buttonTemplate = template.Must(template.New("button").Parse(
	`<table role="presentation" border="0" cellpadding="0" cellspacing="0" style="margin: 16px 0;"><tr><td style="border-radius: 4px; background-color: #0867ec;"><a href="{{.URL}}" target="_blank" style="display: inline-block; padding: 12px 24px; color: #ffffff; font-weight: bold; text-decoration: none;">{{.Text}}</a></td></tr></table>`))

var paragraphTemplate = template.Must(template.New("paragraph").Parse(
	`<p style="margin: 0 0 16px;">{{.}}</p>`))

// GetButton renders a call-to-action button.
func GetButton(props ButtonProps) string {
	return render(buttonTemplate, props)
}

// GetParagraph renders escaped text as a paragraph.
func GetParagraph(text string) string {
	return render(paragraphTemplate, text)
}

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}
