package notification

type DeviceToken struct {
	Token    string `json:"token" db:"token"`
	Platform string `json:"platform" db:"platform"`
}

type Type string

const (
	TypeStreakMilestone Type = "streak_milestone"
	TypeStreakRestored  Type = "streak_restored"
)

// Push is a single message fanned out to every device of one user.
type Push struct {
	Type  Type
	Title string
	Body  string
	Data  map[string]any
}
