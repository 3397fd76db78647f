package streak

import "cloud.google.com/go/civil"

type CurrentStreak struct {
	Interval
	StreakDays int `json:"streak_days"`
}

type Stats struct {
	TotalStreaks  int `json:"total_streaks"`
	LongestStreak int `json:"longest_streak"`
	CurrentStreak int `json:"current_streak"`
	AverageStreak int `json:"average_streak"`
}

type MutationResult struct {
	Intervals []Interval     `json:"intervals"`
	Current   *CurrentStreak `json:"streak"`
}

type LogRequest struct {
	Date string `json:"date,omitempty"`
}

type LogResponse struct {
	Date           civil.Date     `json:"date"`
	Streak         *CurrentStreak `json:"streak"`
	UpdatedStreaks int            `json:"updated_streaks"`
	Milestone      bool           `json:"milestone,omitempty"`
}

type FreezeRequest struct {
	HabitID string `json:"habitId"`
	Date    string `json:"date"`
	Reason  string `json:"reason"`
}

type FreezeUsage struct {
	Limit     int `json:"limit"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

type RestoreRequest struct {
	PaymentIntentID string `json:"paymentIntentId"`
}

type RestoreResponse struct {
	Restored  bool           `json:"restored"`
	Duplicate bool           `json:"duplicate"`
	Record    *RestoreRecord `json:"record,omitempty"`
	Streak    *CurrentStreak `json:"streak,omitempty"`
}

type IssueKind string

const (
	IssueCountMismatch   IssueKind = "count_mismatch"
	IssueOngoingMismatch IssueKind = "ongoing_mismatch"
	IssueMultipleOpen    IssueKind = "multiple_open"
	IssueInverted        IssueKind = "inverted_interval"
	IssueOrphaned        IssueKind = "orphaned_intervals"
)

type Issue struct {
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail"`
}

type ValidationReport struct {
	Issues        []Issue  `json:"issues"`
	FixesApplied  []string `json:"fixes_applied"`
	LedgerCount   int      `json:"ledger_count"`
	IntervalCount int      `json:"interval_count"`
	HasIssues     bool     `json:"has_issues"`
	Fixed         bool     `json:"fixed"`
}

type HabitFailure struct {
	Habit HabitKey `json:"habit"`
	Error string   `json:"error"`
}

type SweepReport struct {
	AsOf    civil.Date     `json:"as_of"`
	Checked int            `json:"checked"`
	Closed  int            `json:"closed"`
	Failed  []HabitFailure `json:"failed"`
}
