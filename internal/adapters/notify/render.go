package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/okian/cohort/internal/domain/model"
)

//go:embed templates/*.html
var templateFS embed.FS

type phaseCopy struct {
	label          string
	next           string
	advanceSubject string
}

var phases = map[model.Phase]phaseCopy{
	model.PhaseApplication:     {label: "application review", next: "first interview round", advanceSubject: "You're invited to interview"},
	model.PhaseInterviewRound1: {label: "first interview round", next: "second interview round", advanceSubject: "You're invited to the next interview"},
	model.PhaseInterviewRound2: {label: "final interview round", next: "offer stage", advanceSubject: "Welcome aboard"},
}

type templateData struct {
	Name       string
	Track      string
	PhaseLabel string
	NextStep   string
}

// Renderer turns notification jobs into messages.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse notification templates: %w", err)
	}
	return &Renderer{tmpl: t}, nil
}

// Render builds the message for job.
func (r *Renderer) Render(job model.NotificationJob) (Message, error) {
	if job.Email == "" {
		return Message{}, ErrNoRecipient
	}
	pc, ok := phases[job.Phase]
	if !ok {
		return Message{}, fmt.Errorf("phase %q: %w", job.Phase, ErrUnknownTemplate)
	}

	var subject string
	switch job.Template {
	case model.TemplateAdvance:
		subject = pc.advanceSubject
	case model.TemplateReject:
		subject = "Update on your application"
	default:
		return Message{}, fmt.Errorf("template %q: %w", job.Template, ErrUnknownTemplate)
	}

	name := job.Name
	if name == "" {
		name = "there"
	}
	var b bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&b, string(job.Template), templateData{
		Name:       name,
		Track:      job.Track,
		PhaseLabel: pc.label,
		NextStep:   pc.next,
	}); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", job.Template, err)
	}
	return Message{To: job.Email, Subject: subject, HTML: b.String()}, nil
}
