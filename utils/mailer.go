package utils

import (
	"bytes"
	"crypto/tls"
	"fmt"
	htmltemplate "html/template"
	"log"
	"strings"
	"text/template"

	"econsensus/models"

	"gopkg.in/gomail.v2"
)

// StandardSendingHeaders go on every notice email
var StandardSendingHeaders = map[string]string{
	"Precedence":     "bulk",
	"Auto-Submitted": "auto-generated",
}

// MailSender delivers composed messages. *gomail.Dialer satisfies it.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Email is a rendered message ready for delivery
type Email struct {
	From     string
	FromName string
	To       []string
	Subject  string
	Text     string
	HTML     string
	Headers  map[string]string
}

type Mailer struct {
	sender MailSender
	logger *log.Logger
}

func NewMailer(sender MailSender, logger *log.Logger) *Mailer {
	return &Mailer{sender: sender, logger: logger}
}

// NewSMTPMailer builds a mailer that dials the SMTP server for every send
func NewSMTPMailer(host string, port int, username, password string, logger *log.Logger) *Mailer {
	dialer := gomail.NewDialer(host, port, username, password)
	dialer.TLSConfig = &tls.Config{ServerName: host}
	return NewMailer(dialer, logger)
}

// Send composes the message and hands it to the SMTP sender
func (m *Mailer) Send(email Email) error {
	if len(email.To) == 0 {
		return fmt.Errorf("email %q has no recipients", email.Subject)
	}

	msg := gomail.NewMessage()
	if email.FromName != "" {
		msg.SetAddressHeader("From", email.From, email.FromName)
	} else {
		msg.SetHeader("From", email.From)
	}
	msg.SetHeader("To", email.To...)
	msg.SetHeader("Subject", email.Subject)
	for name, value := range email.Headers {
		msg.SetHeader(name, value)
	}

	msg.SetBody("text/plain", email.Text)
	if email.HTML != "" {
		msg.AddAlternative("text/html", email.HTML)
	}

	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("error sending email: %w", err)
	}

	m.logger.Printf("Sent %q to %s", email.Subject, strings.Join(email.To, ", "))
	return nil
}

// NoticeContext is the data available to notice templates
type NoticeContext struct {
	NoticeType   string
	Display      string
	SiteDomain   string
	Organization string
	Recipient    string
	Actor        string
	Decision     *models.Decision
	Feedback     *models.Feedback
	Comment      *models.Comment
	Body         string
	URL          string
}

// RenderedNotice holds the subject and bodies of a notice
type RenderedNotice struct {
	Subject string
	Text    string
	HTML    string
}

type noticeTemplate struct {
	subject *template.Template
	text    *template.Template
}

var noticeTemplates = map[string]noticeTemplate{
	models.DecisionNew: mustNoticeTemplate(models.DecisionNew,
		`[{{.Organization}}] New {{.Decision.Status}}: {{.Decision.Excerpt}}`,
		`{{.Actor}} has added a new {{.Decision.Status}}.

{{.Body}}

{{.URL}}`),
	models.DecisionChange: mustNoticeTemplate(models.DecisionChange,
		`[{{.Organization}}] Changed {{.Decision.Status}}: {{.Decision.Excerpt}}`,
		`{{.Actor}} has changed a {{.Decision.Status}} you are watching.

{{.Body}}

{{.URL}}`),
	models.FeedbackNew: mustNoticeTemplate(models.FeedbackNew,
		`[{{.Organization}}] New {{.Feedback.RatingLabel}} on: {{.Decision.Excerpt}}`,
		`{{.Actor}} has added {{.Feedback.RatingLabel}} feedback.

{{.Body}}

{{.URL}}`),
	models.FeedbackChange: mustNoticeTemplate(models.FeedbackChange,
		`[{{.Organization}}] Changed {{.Feedback.RatingLabel}} on: {{.Decision.Excerpt}}`,
		`{{.Actor}} has changed {{.Feedback.RatingLabel}} feedback you are watching.

{{.Body}}

{{.URL}}`),
	models.CommentNew: mustNoticeTemplate(models.CommentNew,
		`[{{.Organization}}] New comment on: {{.Decision.Excerpt}}`,
		`{{.Actor}} has replied to {{.Feedback.RatingLabel}} feedback.

{{.Body}}

{{.URL}}`),
	models.CommentChange: mustNoticeTemplate(models.CommentChange,
		`[{{.Organization}}] Changed comment on: {{.Decision.Excerpt}}`,
		`{{.Actor}} has changed a comment you are watching.

{{.Body}}

{{.URL}}`),
}

var noticeLayout = htmltemplate.Must(htmltemplate.New("notice").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.Subject}}</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { color: #2c3e50; border-bottom: 1px solid #eee; padding-bottom: 10px; }
        .content { margin: 20px 0; white-space: pre-wrap; }
        .footer { margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <h2>{{.Display}}</h2>
    </div>
    <div class="content">{{.Text}}</div>
    <div class="footer">
        <p>You are receiving this because you are watching this item on {{.SiteDomain}}.</p>
        <p><a href="{{.URL}}">{{.URL}}</a></p>
    </div>
</body>
</html>`))

func mustNoticeTemplate(label, subject, text string) noticeTemplate {
	return noticeTemplate{
		subject: template.Must(template.New(label + "_subject").Parse(subject)),
		text:    template.Must(template.New(label + "_text").Parse(text)),
	}
}

// RenderNotice fills the notice type's templates
func RenderNotice(ctx NoticeContext) (*RenderedNotice, error) {
	tmpl, ok := noticeTemplates[ctx.NoticeType]
	if !ok {
		return nil, fmt.Errorf("template '%s' not found", ctx.NoticeType)
	}

	var subject, text, html bytes.Buffer
	if err := tmpl.subject.Execute(&subject, ctx); err != nil {
		return nil, fmt.Errorf("error executing subject template: %w", err)
	}
	if err := tmpl.text.Execute(&text, ctx); err != nil {
		return nil, fmt.Errorf("error executing text template: %w", err)
	}

	rendered := &RenderedNotice{
		// Subjects are single line
		Subject: strings.Join(strings.Fields(subject.String()), " "),
		Text:    text.String(),
	}

	err := noticeLayout.Execute(&html, struct {
		Subject    string
		Display    string
		Text       string
		SiteDomain string
		URL        string
	}{rendered.Subject, ctx.Display, rendered.Text, ctx.SiteDomain, ctx.URL})
	if err != nil {
		return nil, fmt.Errorf("error executing html template: %w", err)
	}
	rendered.HTML = html.String()
	return rendered, nil
}
