package models

import "time"

// TimeEntryDraft is one synthesized ledger entry. Start and End are UTC with
// whole-second precision.
type TimeEntryDraft struct {
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	ProjectID   string    `json:"projectId"`
	TaskID      string    `json:"taskId"`
}

// Duration returns End - Start.
func (d TimeEntryDraft) Duration() time.Duration {
	return d.End.Sub(d.Start)
}

type TimeInterval struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration string    `json:"duration"`
}

// LedgerResponse is the ledger's view of a created time entry.
type LedgerResponse struct {
	ID                string        `json:"id"`
	Description       string        `json:"description"`
	TagIDs            []string      `json:"tagIds"`
	UserID            string        `json:"userId"`
	Billable          bool          `json:"billable"`
	TaskID            string        `json:"taskId"`
	ProjectID         string        `json:"projectId"`
	TimeInterval      *TimeInterval `json:"timeInterval"`
	WorkspaceID       string        `json:"workspaceId"`
	IsLocked          bool          `json:"isLocked"`
	CustomFieldValues []any         `json:"customFieldValues"`
	Type              string        `json:"type"`
	KioskID           string        `json:"kioskId"`
}

// ExecutionSummary reports the outcome of one submission run. Counts are
// derived from the slices by Seal.
type ExecutionSummary struct {
	TotalRequested int              `json:"totalRequested"`
	TotalSuccess   int              `json:"totalSuccess"`
	TotalFailed    int              `json:"totalFailed"`
	Succeeded      []LedgerResponse `json:"timeEntryResponses"`
	Failed         []TimeEntryDraft `json:"timeEntryFailures"`
	Aborted        bool             `json:"aborted,omitempty"`
}

// Seal recomputes the success and failure counts from the recorded results.
func (s *ExecutionSummary) Seal() {
	s.TotalSuccess = len(s.Succeeded)
	s.TotalFailed = len(s.Failed)
}
