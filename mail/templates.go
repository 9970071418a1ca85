package mail

import (
	"fmt"
	"html/template"
	"strings"
)

var verificationTmpl = template.Must(template.New("verification").Parse(`<html>
<body>
  <p>Welcome to {{.AppName}}, {{.Name}}!</p>
  <p>Confirm your email address to activate your account:</p>
  <p><a href="{{.Link}}">Verify my email</a></p>
  <p>The link expires in one hour. If you did not create this account,
  you can ignore this message.</p>
</body>
</html>`))

var passwordResetTmpl = template.Must(template.New("reset").Parse(`<html>
<body>
  <p>Hi {{.Name}},</p>
  <p>We received a request to reset the password for your {{.AppName}}
  account. Use the link below within one hour:</p>
  <p><a href="{{.Link}}">Reset my password</a></p>
  <p>If you did not request this, your password is unchanged and no
  action is needed.</p>
</body>
</html>`))

type linkData struct {
	AppName string
	Name    string
	Link    string
}

// VerificationEmail renders the subject and HTML body for the
// email-verification message sent at registration.
func VerificationEmail(appName, name, link string) (subject, html string, err error) {
	subject = fmt.Sprintf("Verify your %s email address", appName)
	html, err = render(verificationTmpl, linkData{AppName: appName, Name: name, Link: link})
	return subject, html, err
}

// PasswordResetEmail renders the subject and HTML body for the
// password-reset message.
func PasswordResetEmail(appName, name, link string) (subject, html string, err error) {
	subject = fmt.Sprintf("Reset your %s password", appName)
	html, err = render(passwordResetTmpl, linkData{AppName: appName, Name: name, Link: link})
	return subject, html, err
}

func render(tmpl *template.Template, data linkData) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}
