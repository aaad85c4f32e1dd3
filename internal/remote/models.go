package remote

import "time"

const (
	StatusNotifying          = "notifying"
	StatusCompleted          = "completed"
	StatusExhausted          = "exhausted"
	StatusCancelledBySignOut = "cancelled_by_sign_out"
)

const (
	ContactActive       = "active"
	ContactNotified     = "notified"
	ContactAcknowledged = "acknowledged"
)

type ContactStatus struct {
	Status            string `json:"status"`
	NotificationCount int    `json:"notification_count"`
}

// Record is the server-side dead-man's-switch document, one per tracking
// activation. The device owns activation time and active flag; the scanner
// owns contact statuses, overall status and the next reminder time.
type Record struct {
	ID                      string                   `json:"id"`
	TrackedUserID           string                   `json:"tracked_user_id"`
	EmergencyContactIDs     []string                 `json:"emergency_contact_ids"`
	EmergencyActivationTime time.Time                `json:"emergency_activation_time"`
	LastUpdateTime          time.Time                `json:"last_update_time"`
	IsActive                bool                     `json:"is_active"`
	NextNotificationTime    time.Time                `json:"next_notification_time"`
	OverallStatus           string                   `json:"overall_status"`
	ContactStatus           map[string]ContactStatus `json:"contact_status"`
}

// FreshContactStatus builds the initial per-contact map for a new epoch.
func FreshContactStatus(contactIDs []string) map[string]ContactStatus {
	statuses := make(map[string]ContactStatus, len(contactIDs))
	for _, id := range contactIDs {
		statuses[id] = ContactStatus{Status: ContactActive}
	}
	return statuses
}
