package model

import "time"

// Template selects the message sent after a cutoff.
type Template string

const (
	TemplateAdvance Template = "advance"
	TemplateReject  Template = "reject"
)

// TemplateFor maps a decision to its notification template.
func TemplateFor(d Decision) Template {
	if d.Advances() {
		return TemplateAdvance
	}
	return TemplateReject
}

// NotificationStatus is the outcome of one send.
type NotificationStatus string

const (
	NotificationSent   NotificationStatus = "sent"
	NotificationFailed NotificationStatus = "failed"
)

// NotificationOutcome is the recorded result of notifying one applicant
// about one cutoff run.
type NotificationOutcome struct {
	RunID         string             `json:"run_id"`
	ApplicationID string             `json:"application_id"`
	Email         string             `json:"email"`
	Template      Template           `json:"template"`
	Phase         Phase              `json:"phase"`
	Status        NotificationStatus `json:"status"`
	Error         string             `json:"error,omitempty"`
	Attempts      int                `json:"attempts"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// NotificationSummary is returned alongside a successful cutoff. Sent,
// Failed and Skipped add up to the number of jobs handed in.
type NotificationSummary struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	// Skipped counts jobs already in flight or delivered.
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Add merges another summary into s.
func (s *NotificationSummary) Add(o NotificationSummary) {
	s.Sent += o.Sent
	s.Failed += o.Failed
	s.Skipped += o.Skipped
	s.Errors = append(s.Errors, o.Errors...)
}

// AuditEntry is one record handed to the audit sink.
type AuditEntry struct {
	ID         string         `json:"id"`
	ActorEmail string         `json:"actor_email"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Meta       map[string]any `json:"meta,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NotificationJob is one message to deliver for one cutoff run.
type NotificationJob struct {
	RunID         string   `json:"run_id"`
	ApplicationID string   `json:"application_id"`
	Email         string   `json:"email"`
	Name          string   `json:"name"`
	Track         string   `json:"track,omitempty"`
	Template      Template `json:"template"`
	Phase         Phase    `json:"phase"`
	Attempt       int      `json:"attempt"`
}

// Key identifies the delivery for deduplication.
func (j NotificationJob) Key() string {
	return j.RunID + "|" + j.ApplicationID + "|" + string(j.Template)
}
