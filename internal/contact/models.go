package contact

import "time"

type Contact struct {
	UserID    string    `json:"user_id"`
	ContactID string    `json:"contact_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
