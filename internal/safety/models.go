package safety

import (
	"time"

	"github.com/jensenyang2004/Safii-sub000/internal/notify"
	"github.com/jensenyang2004/Safii-sub000/internal/timeline"
)

type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseTracking        Phase = "tracking"
	PhaseReportDue       Phase = "report_due"
	PhaseEmergencyActive Phase = "emergency_active"
)

type StopReason string

const (
	StopUser      StopReason = "user"
	StopSignOut   StopReason = "sign_out"
	StopEmergency StopReason = "emergency"
)

// State is what reconciliation reports: a pure function of the stored
// timeline and the wall clock.
type State struct {
	Phase           Phase            `json:"phase"`
	StrikeCount     int              `json:"strike_count"`
	StrikeThreshold int              `json:"strike_threshold,omitempty"`
	ReportDeadline  *time.Time       `json:"report_deadline,omitempty"`
	NextCheckIn     *time.Time       `json:"next_check_in,omitempty"`
	EmergencyAt     *time.Time       `json:"emergency_at,omitempty"`
	Timeline        []timeline.Event `json:"timeline,omitempty"`
}

// StartParams configures one tracking activation. Durations arrive from
// the client in whole minutes.
type StartParams struct {
	ModeID           string   `json:"mode_id"`
	SessionMinutes   int      `json:"session_minutes"`
	ReductionMinutes int      `json:"reduction_minutes"`
	StrikeThreshold  int      `json:"strike_threshold"`
	ContactIDs       []string `json:"contact_ids"`
}

// Session is the durable local record of the current epoch.
type Session struct {
	UserID           string
	ModeID           string
	StartTime        time.Time
	SessionMinutes   int
	ReductionMinutes int
	StrikeThreshold  int
	StrikeCount      int
	Active           bool
	Timeline         []timeline.Event
	Handles          []notify.Handle
	ReportDeadline   *time.Time
	ContactIDs       []string
	RecordID         string
}
