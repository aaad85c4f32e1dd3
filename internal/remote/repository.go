package remote

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jensenyang2004/Safii-sub000/internal/db"

	"github.com/google/uuid"
)

var ErrUnknownContact = errors.New("contact not on record")

type Repository struct {
	db db.Querier
}

func NewRepository(q db.Querier) *Repository {
	return &Repository{db: q}
}

// Create writes a new active_tracking document when tracking starts.
func (r *Repository) Create(ctx context.Context, rec Record) (Record, error) {
	rec.ID = uuid.NewString()
	if rec.OverallStatus == "" {
		rec.OverallStatus = StatusNotifying
	}
	if rec.NextNotificationTime.IsZero() {
		rec.NextNotificationTime = rec.EmergencyActivationTime
	}
	if rec.ContactStatus == nil {
		rec.ContactStatus = FreshContactStatus(rec.EmergencyContactIDs)
	}

	statuses, err := json.Marshal(rec.ContactStatus)
	if err != nil {
		return Record{}, err
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO active_tracking (id, tracked_user_id, emergency_contact_ids, emergency_activation_time, last_update_time, is_active, next_notification_time, overall_status, contact_status)
		VALUES ($1,$2,$3,$4,NOW(),true,$5,$6,$7)
		RETURNING last_update_time
	`, rec.ID, rec.TrackedUserID, rec.EmergencyContactIDs, rec.EmergencyActivationTime, rec.NextNotificationTime, rec.OverallStatus, statuses)
	if err := row.Scan(&rec.LastUpdateTime); err != nil {
		return Record{}, err
	}
	rec.IsActive = true
	return rec, nil
}

// RefreshActivation pushes the activation time forward after a safety
// report. Contact statuses reset to a fresh epoch; only the originating
// device ever calls this.
func (r *Repository) RefreshActivation(ctx context.Context, id string, activation time.Time, contactIDs []string) error {
	statuses, err := json.Marshal(FreshContactStatus(contactIDs))
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, `
		UPDATE active_tracking
		SET emergency_activation_time=$2,
		    next_notification_time=$2,
		    overall_status=$3,
		    emergency_contact_ids=$4,
		    contact_status=$5,
		    last_update_time=NOW()
		WHERE id=$1
	`, id, activation, StatusNotifying, contactIDs, statuses)
	return err
}

// Deactivate closes a record on explicit stop. A non-empty status also
// rewrites overall_status (sign-out uses cancelled_by_sign_out).
func (r *Repository) Deactivate(ctx context.Context, id, status string) error {
	if status == "" {
		_, err := r.db.Exec(ctx, `
			UPDATE active_tracking SET is_active=false, last_update_time=NOW() WHERE id=$1
		`, id)
		return err
	}
	_, err := r.db.Exec(ctx, `
		UPDATE active_tracking SET is_active=false, overall_status=$2, last_update_time=NOW() WHERE id=$1
	`, id, status)
	return err
}

// Due lists the records the reminder scanner must process: active,
// still notifying, and past their next reminder time.
func (r *Repository) Due(ctx context.Context, now time.Time) ([]Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tracked_user_id, emergency_contact_ids, emergency_activation_time, last_update_time, is_active, next_notification_time, overall_status, contact_status
		FROM active_tracking
		WHERE is_active=true AND overall_status=$1 AND next_notification_time <= $2
	`, StatusNotifying, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var statuses []byte
		if err := rows.Scan(&rec.ID, &rec.TrackedUserID, &rec.EmergencyContactIDs, &rec.EmergencyActivationTime, &rec.LastUpdateTime, &rec.IsActive, &rec.NextNotificationTime, &rec.OverallStatus, &statuses); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(statuses, &rec.ContactStatus); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ApplyScan persists one scanner pass over a record as a single statement,
// keeping the per-record update atomic.
func (r *Repository) ApplyScan(ctx context.Context, id string, statuses map[string]ContactStatus, overallStatus string, next time.Time) error {
	encoded, err := json.Marshal(statuses)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		UPDATE active_tracking
		SET contact_status=$2, overall_status=$3, next_notification_time=$4, last_update_time=NOW()
		WHERE id=$1
	`, id, encoded, overallStatus, next)
	return err
}

// Acknowledge marks a single contact acknowledged without touching the
// rest of the map.
func (r *Repository) Acknowledge(ctx context.Context, recordID, contactID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE active_tracking
		SET contact_status = jsonb_set(contact_status, ARRAY[$2,'status'], '"acknowledged"'),
		    last_update_time=NOW()
		WHERE id=$1 AND contact_status ? $2
	`, recordID, contactID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownContact
	}
	return nil
}
