package timeline

import "time"

type EventType string

const (
	EventSessionEnd   EventType = "session_end"
	EventMissedReport EventType = "missed_report"
)

type Event struct {
	Time            time.Time  `json:"time"`
	Type            EventType  `json:"type"`
	Strike          int        `json:"strike"`
	Description     string     `json:"description"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	StrikeThreshold int        `json:"strike_threshold"`
}
