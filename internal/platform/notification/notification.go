// Package notification renders and delivers account emails.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Template ids.
const (
	TemplatePasswordReset = "password-reset"
	TemplateInvitation    = "invitation"
)

// EmailSender delivers one plain-text email.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Template is a subject/body pair with {{key}} placeholders.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine holds the registered templates.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	e.Register(Template{
		ID:      TemplatePasswordReset,
		Subject: "Restablece tu contraseña",
		Body: "Hola {{nombre}},\n\n" +
			"Recibimos una solicitud para restablecer tu contraseña. " +
			"Usa el siguiente enlace antes de {{vence}}:\n\n{{enlace}}\n\n" +
			"Si no la solicitaste puedes ignorar este mensaje.",
	})
	e.Register(Template{
		ID:      TemplateInvitation,
		Subject: "Tu cuenta de seguimiento de fisioterapia",
		Body: "Hola {{nombre}},\n\n" +
			"{{terapeuta}} creó una cuenta para ti. " +
			"Define tu contraseña con el siguiente enlace antes de {{vence}}:\n\n{{enlace}}",
	})
	return e
}

func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render substitutes data into the template. Placeholders without data are
// left as-is.
func (e *TemplateEngine) Render(id string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}

	pairs := make([]string, 0, 2*len(data))
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}

// Mailer renders templates and hands them to a sender.
type Mailer struct {
	sender    EmailSender
	templates *TemplateEngine
}

func NewMailer(sender EmailSender, templates *TemplateEngine) *Mailer {
	return &Mailer{sender: sender, templates: templates}
}

func (m *Mailer) Send(ctx context.Context, to, templateID string, data map[string]string) error {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return err
	}
	if err := m.sender.SendEmail(ctx, to, subject, body); err != nil {
		return fmt.Errorf("send %s email: %w", templateID, err)
	}
	return nil
}
