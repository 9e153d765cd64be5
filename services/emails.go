package services

import (
	"strings"
	"text/template"

	"github.com/cppla/bloghub/utils"
)

var (
	confirmEmail = template.Must(template.New("confirm").Parse(`Dear {{.User.Username}},

Welcome to Bloghub!

To confirm your account please click on the following link:

{{.Link}}

Sincerely,

The Bloghub Team

Note: replies to this email address are not monitored.
`))

	resetEmail = template.Must(template.New("reset").Parse(`Dear {{.User.Username}},

To reset your password click on the following link:

{{.Link}}

If you have not requested a password reset simply ignore this message.

Sincerely,

The Bloghub Team

Note: replies to this email address are not monitored.
`))

	changeEmail = template.Must(template.New("change_email").Parse(`Dear {{.User.Username}},

To confirm your new email address click on the following link:

{{.Link}}

Sincerely,

The Bloghub Team

Note: replies to this email address are not monitored.
`))

	newUserEmail = template.Must(template.New("new_user").Parse(`User {{.User.Username}} has joined.
`))
)

func (s *AccountService) send(to, subject string, tmpl *template.Template, data map[string]interface{}) {
	var body strings.Builder
	if err := tmpl.Execute(&body, data); err != nil {
		utils.Sugar.Warnf("render %s email: %v", tmpl.Name(), err)
		return
	}
	s.mail.Send(utils.Message{To: to, Subject: subject, Text: body.String()})
}
