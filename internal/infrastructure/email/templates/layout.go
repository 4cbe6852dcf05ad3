// Package templates provides email template layout
package templates

import (
	"bytes"
	"html/template"
)

type EmailLayoutProps struct {
	Preheader  string
	Content    string
	FooterText string
	BrandName  string
	BrandURL   string
}

type emailTemplateData struct {
	Preheader  string
	Content    template.HTML
	FooterText string
	BrandName  string
	BrandURL   string
}

var emailLayoutTemplate = template.Must(template.New("emailLayout").Parse(`
<!doctype html>
<html lang="en">
  <head>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <meta http-equiv="Content-Type" content="text/html; charset=UTF-8">
    <title>{{.BrandName}}</title>
  </head>
  <body style="font-family: Helvetica, sans-serif; font-size: 16px; line-height: 1.3; background-color: #f4f5f6; margin: 0; padding: 0;">
    <span style="display: none; max-height: 0; overflow: hidden;">{{.Preheader}}</span>
    <table role="presentation" border="0" cellpadding="0" cellspacing="0" style="width: 100%; background-color: #f4f5f6;" width="100%">
      <tr>
        <td style="max-width: 600px; padding-top: 24px; margin: 0 auto;" width="600">
          <table role="presentation" border="0" cellpadding="0" cellspacing="0" style="background: #ffffff; border: 1px solid #eaebed; border-radius: 16px; width: 100%;" width="100%">
            <tr>
              <td style="padding: 24px;">
                {{.Content}}
              </td>
            </tr>
          </table>
          <div style="padding-top: 24px; text-align: center; color: #9a9ea6;">
            {{.FooterText}}<br>
            <a href="{{.BrandURL}}" style="color: #9a9ea6; text-decoration: none;">{{.BrandName}}</a>
          </div>
        </td>
      </tr>
    </table>
  </body>
</html>`))

// GetEmailLayout wraps content in the shared layout.
func GetEmailLayout(props EmailLayoutProps) (string, error) {
	data := emailTemplateData{
		Preheader:  props.Preheader,
		Content:    template.HTML(props.Content),
		FooterText: props.FooterText,
		BrandName:  props.BrandName,
		BrandURL:   props.BrandURL,
	}
	if data.FooterText == "" {
		data.FooterText = "AI-powered equity research for Indian markets"
	}
	if data.BrandName == "" {
		data.BrandName = "Permabullish"
	}
	if data.BrandURL == "" {
		data.BrandURL = "https://permabullish.com"
	}

	var buf bytes.Buffer
	if err := emailLayoutTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
