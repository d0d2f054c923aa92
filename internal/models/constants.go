package models

import "time"

// TaskCategory names a ledger task bucket. The ledger identifier behind each
// category comes from configuration.
type TaskCategory string

const (
	TaskDevelopment TaskCategory = "Development"
	TaskImprovement TaskCategory = "Improvement"
	TaskFix         TaskCategory = "Fix"
	TaskVodaMeeting TaskCategory = "VodaMeeting"
	TaskOther       TaskCategory = "Other"
)

// TaskCategories lists every category in lookup order.
var TaskCategories = []TaskCategory{
	TaskDevelopment,
	TaskImprovement,
	TaskFix,
	TaskVodaMeeting,
	TaskOther,
}

const (
	ProjectProductive = "Productive"
	ProjectMeetings   = "Meetings"
)

// Built-in ledger identifiers, used when configuration leaves them empty.
const (
	DefaultWorkspaceID = "6213714540f87e49fd8b6fcd"

	DefaultProductiveProjectID = "6213903e01ee382fa97d100e"
	DefaultMeetingsProjectID   = "6213724640f87e49fd8b86ca"

	DefaultDevelopmentTaskID = "65730211bd20b950a42be006"
	DefaultImprovementTaskID = "65673c35c367e226ae4735ea"
	DefaultFixTaskID         = "65673c5486cf56118cdf5f10"
	DefaultVodaMeetingTaskID = "6569e6297deb44467628c620"
	DefaultOtherTaskID       = "65697a7e46a501615ae242ce"
)

const (
	// DefaultSubmitDelay is the pause after every ledger call.
	DefaultSubmitDelay = 10 * time.Millisecond

	// DefaultTicketTaskName is the task used for ticket-driven productive entries.
	DefaultTicketTaskName = string(TaskDevelopment)

	// DefaultRunLockTTL bounds how long a flow/range stays locked.
	DefaultRunLockTTL = 10 * time.Minute
)
