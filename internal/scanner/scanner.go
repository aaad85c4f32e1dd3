package scanner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jensenyang2004/Safii-sub000/internal/push"
	"github.com/jensenyang2004/Safii-sub000/internal/remote"

	"go.uber.org/zap"
)

// Records is the scanner-owned slice of the record store.
type Records interface {
	Due(ctx context.Context, now time.Time) ([]remote.Record, error)
	ApplyScan(ctx context.Context, id string, statuses map[string]remote.ContactStatus, overallStatus string, next time.Time) error
}

// Directory resolves contact push tokens and the tracked user's display
// name.
type Directory interface {
	PushToken(ctx context.Context, contactID string) (string, error)
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Scanner drives contact escalation once a record's activation time has
// passed. It is stateless between passes: everything it needs lives in
// the record store.
type Scanner struct {
	records          Records
	directory        Directory
	sender           push.Sender
	logger           *zap.Logger
	reminderInterval time.Duration
	maxNotifications int
	clock            func() time.Time
}

func New(records Records, directory Directory, sender push.Sender, logger *zap.Logger, reminderInterval time.Duration, maxNotifications int) *Scanner {
	return &Scanner{
		records:          records,
		directory:        directory,
		sender:           sender,
		logger:           logger,
		reminderInterval: reminderInterval,
		maxNotifications: maxNotifications,
		clock:            time.Now,
	}
}

// Run executes Scan on a fixed schedule until the context is cancelled.
func (s *Scanner) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 15 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.logger.Info("reminder scanner running", zap.Duration("interval", every))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scanner stopped")
			return
		case <-ticker.C:
			if err := s.Scan(ctx); err != nil {
				s.logger.Error("scan pass failed", zap.Error(err))
			}
		}
	}
}

// Scan processes every due record once. A failure on one record never
// aborts the others.
func (s *Scanner) Scan(ctx context.Context) error {
	now := s.clock()
	records, err := s.records.Due(ctx, now)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if err := s.process(ctx, rec, now); err != nil {
			s.logger.Error("record processing failed",
				zap.String("record_id", rec.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Scanner) process(ctx context.Context, rec remote.Record, now time.Time) error {
	name, err := s.directory.DisplayName(ctx, rec.TrackedUserID)
	if err != nil || name == "" {
		s.logger.Warn("display name unavailable", zap.String("user_id", rec.TrackedUserID), zap.Error(err))
		name = "A Safii user"
	}

	delivered := 0
	contactIDs := make([]string, 0, len(rec.ContactStatus))
	for id := range rec.ContactStatus {
		contactIDs = append(contactIDs, id)
	}
	sort.Strings(contactIDs)

	for _, contactID := range contactIDs {
		status := rec.ContactStatus[contactID]
		if status.Status == remote.ContactAcknowledged {
			continue
		}
		if status.NotificationCount >= s.maxNotifications {
			continue
		}

		token, err := s.directory.PushToken(ctx, contactID)
		if err != nil || token == "" {
			// Status stays unacknowledged, so the next interval picks the
			// contact up again.
			s.logger.Warn("push token missing, contact skipped",
				zap.String("record_id", rec.ID),
				zap.String("contact_id", contactID),
				zap.Error(err),
			)
			continue
		}

		msg := push.Message{
			To:    token,
			Title: "Safii safety alert",
			Body:  fmt.Sprintf("%s missed their safety check-ins and may need help. Please check on them.", name),
			Data: map[string]string{
				"type":      "emergency_reminder",
				"record_id": rec.ID,
				"user_id":   rec.TrackedUserID,
			},
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			s.logger.Warn("reminder delivery failed",
				zap.String("record_id", rec.ID),
				zap.String("contact_id", contactID),
				zap.Error(err),
			)
			continue
		}

		status.Status = remote.ContactNotified
		status.NotificationCount++
		rec.ContactStatus[contactID] = status
		delivered++
	}

	allAcknowledged := true
	for _, status := range rec.ContactStatus {
		if status.Status != remote.ContactAcknowledged {
			allAcknowledged = false
			break
		}
	}

	if allAcknowledged {
		s.logger.Info("all contacts acknowledged, record completed", zap.String("record_id", rec.ID))
		return s.records.ApplyScan(ctx, rec.ID, rec.ContactStatus, remote.StatusCompleted, now)
	}

	// No acknowledgment and nothing left to send: every unacknowledged
	// contact is at the cap. Close the record after a full no-op pass
	// instead of rescheduling it forever.
	exhausted := delivered == 0
	for _, status := range rec.ContactStatus {
		if status.Status != remote.ContactAcknowledged && status.NotificationCount < s.maxNotifications {
			exhausted = false
			break
		}
	}
	if exhausted {
		s.logger.Info("all contacts at the reminder cap, record closed", zap.String("record_id", rec.ID))
		return s.records.ApplyScan(ctx, rec.ID, rec.ContactStatus, remote.StatusExhausted, now)
	}

	return s.records.ApplyScan(ctx, rec.ID, rec.ContactStatus, remote.StatusNotifying, now.Add(s.reminderInterval))
}
