package models

import "time"

// Flow names the entry-generation flow that produced a run.
type Flow string

const (
	FlowMeetings   Flow = "meetings"
	FlowProductive Flow = "productive"
	FlowRecurring  Flow = "recurring"
	FlowTickets    Flow = "tickets"
)

// SubmissionRun is the journal record of one submission run.
type SubmissionRun struct {
	ID             string           `json:"id"`
	Flow           Flow             `json:"flow"`
	RangeStart     time.Time        `json:"rangeStart"`
	RangeEnd       time.Time        `json:"rangeEnd"`
	StartedAt      time.Time        `json:"startedAt"`
	FinishedAt     time.Time        `json:"finishedAt"`
	TotalRequested int              `json:"totalRequested"`
	TotalSuccess   int              `json:"totalSuccess"`
	TotalFailed    int              `json:"totalFailed"`
	Aborted        bool             `json:"aborted"`
	Error          string           `json:"error,omitempty"`
	Failed         []TimeEntryDraft `json:"failed,omitempty"`
}
