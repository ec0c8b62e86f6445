package model

import "time"

// ApplicationStage is where an applicant currently sits in the pipeline.
type ApplicationStage string

const (
	StageNotStarted      ApplicationStage = "not_started"
	StageDraft           ApplicationStage = "draft"
	StageSubmitted       ApplicationStage = "submitted"
	StageUnderReview     ApplicationStage = "under_review"
	StageCoffeeChat      ApplicationStage = "coffee_chat"
	StageInterviewRound1 ApplicationStage = "interview_round1"
	StageInterviewRound2 ApplicationStage = "interview_round2"
	StageFinalReview     ApplicationStage = "final_review"
	StageAccepted        ApplicationStage = "accepted"
	StageRejected        ApplicationStage = "rejected"
	StageWaitlisted      ApplicationStage = "waitlisted"
	StageWithdrawn       ApplicationStage = "withdrawn"
)

// Application is the intake record of an applicant. The engine only ever
// changes Stage.
type Application struct {
	ID             string            `json:"id"`
	CycleID        string            `json:"cycle_id"`
	Track          string            `json:"track"`
	ApplicantName  string            `json:"applicant_name"`
	ApplicantEmail string            `json:"applicant_email"`
	Stage          ApplicationStage  `json:"stage"`
	Answers        map[string]string `json:"answers,omitempty"`
	SubmittedAt    *time.Time        `json:"submitted_at,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// StageMove is a single planned stage change. From is the expected current
// stage; stores skip the move when the application is already at To.
type StageMove struct {
	ApplicationID string           `json:"application_id"`
	From          ApplicationStage `json:"from"`
	To            ApplicationStage `json:"to"`
}
