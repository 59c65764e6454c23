// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"html/template"
)

// AccountDisabledEmailData fills the account disabled notification.
type AccountDisabledEmailData struct {
	AppName      string
	UserName     string
	Notice       string // plain text, optional
	ContactEmail string
}

// AccountEnabledEmailData fills the account enabled notification.
type AccountEnabledEmailData struct {
	AppName  string
	UserName string
	LoginURL string
}

// AccountDisabledEmail renders the notification sent after an account is
// disabled.
func AccountDisabledEmail(data AccountDisabledEmailData) (textBody, htmlBody string) {
	textBody = "Hello " + data.UserName + ",\n\n" +
		"Your " + data.AppName + " account has been disabled and all of its sessions were signed out.\n\n"
	if data.Notice != "" {
		textBody += data.Notice + "\n\n"
	}
	textBody += "If you believe this was done in error, please contact your administrator"
	if data.ContactEmail != "" {
		textBody += " at " + data.ContactEmail
	}
	textBody += "."

	return textBody, render(accountDisabledTmpl, data)
}

// AccountEnabledEmail renders the notification sent after an account is
// re-enabled.
func AccountEnabledEmail(data AccountEnabledEmailData) (textBody, htmlBody string) {
	textBody = "Hello " + data.UserName + ",\n\n" +
		"Your " + data.AppName + " account has been enabled.\n\n"
	if data.LoginURL != "" {
		textBody += "You can sign in at:\n" + data.LoginURL + "\n\n"
	}
	textBody += "If you have any questions, please contact your administrator."

	return textBody, render(accountEnabledTmpl, data)
}

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return ""
	}
	return buf.String()
}

const layout = `{{define "layout"}}<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif; background-color: #f4f4f5;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f4f4f5;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 480px; background-color: #ffffff; border-radius: 8px;">
          <tr>
            <td style="padding: 32px 32px 24px 32px; text-align: center; border-bottom: 1px solid #e4e4e7;">
              <h1 style="margin: 0; font-size: 24px; font-weight: 600; color: #18181b;">{{.AppName}}</h1>
            </td>
          </tr>
          <tr>
            <td style="padding: 32px; font-size: 15px; line-height: 1.6; color: #52525b;">
              <p style="margin: 0 0 16px 0;">Hello {{.UserName}},</p>
              {{template "body" .}}
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>{{end}}`

var accountDisabledTmpl = template.Must(template.Must(template.New("account_disabled").Parse(layout)).Parse(`{{define "body"}}
              <p style="margin: 0 0 16px 0;">Your account has been disabled and all of its sessions were signed out.</p>
              {{if .Notice}}<p style="margin: 0 0 16px 0;">{{.Notice}}</p>{{end}}
              <p style="margin: 0;">If you believe this was done in error, please contact your administrator{{if .ContactEmail}} at <a href="mailto:{{.ContactEmail}}">{{.ContactEmail}}</a>{{end}}.</p>
{{end}}`))

var accountEnabledTmpl = template.Must(template.Must(template.New("account_enabled").Parse(layout)).Parse(`{{define "body"}}
              <p style="margin: 0 0 16px 0;">Your account has been enabled.</p>
              {{if .LoginURL}}<p style="margin: 0 0 16px 0;"><a href="{{.LoginURL}}" style="color: #2563eb;">Sign in</a></p>{{end}}
              <p style="margin: 0;">If you have any questions, please contact your administrator.</p>
{{end}}`))
