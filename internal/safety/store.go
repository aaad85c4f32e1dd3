package safety

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jensenyang2004/Safii-sub000/internal/notify"
	"github.com/jensenyang2004/Safii-sub000/internal/timeline"

	"github.com/redis/go-redis/v9"
)

// Store persists one tracking session per user as a flat set of keys, so
// any single field can be read or rewritten without touching the rest.
// Multi-key writes go through a transaction pipeline.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

const (
	fieldTimeline         = "timeline"
	fieldActive           = "active"
	fieldStartTime        = "start-time"
	fieldStrike           = "strike"
	fieldHandles          = "handles"
	fieldReportDeadline   = "report-deadline"
	fieldMode             = "mode"
	fieldSessionMinutes   = "session-minutes"
	fieldReductionMinutes = "reduction-minutes"
	fieldThreshold        = "threshold"
	fieldContacts         = "contacts"
	fieldRecordID         = "record-id"
)

var sessionFields = []string{
	fieldTimeline, fieldActive, fieldStartTime, fieldStrike, fieldHandles,
	fieldReportDeadline, fieldMode, fieldSessionMinutes, fieldReductionMinutes,
	fieldThreshold, fieldContacts, fieldRecordID,
}

func key(userID, field string) string {
	return "safety:" + userID + ":" + field
}

func (s *Store) SaveSession(ctx context.Context, sess Session) error {
	events, err := json.Marshal(sess.Timeline)
	if err != nil {
		return err
	}
	handles, err := json.Marshal(sess.Handles)
	if err != nil {
		return err
	}
	contacts, err := json.Marshal(sess.ContactIDs)
	if err != nil {
		return err
	}

	active := "0"
	if sess.Active {
		active = "1"
	}
	deadline := ""
	if sess.ReportDeadline != nil {
		deadline = sess.ReportDeadline.Format(time.RFC3339Nano)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key(sess.UserID, fieldTimeline), events, 0)
	pipe.Set(ctx, key(sess.UserID, fieldActive), active, 0)
	pipe.Set(ctx, key(sess.UserID, fieldStartTime), sess.StartTime.Format(time.RFC3339Nano), 0)
	pipe.Set(ctx, key(sess.UserID, fieldStrike), strconv.Itoa(sess.StrikeCount), 0)
	pipe.Set(ctx, key(sess.UserID, fieldHandles), handles, 0)
	pipe.Set(ctx, key(sess.UserID, fieldReportDeadline), deadline, 0)
	pipe.Set(ctx, key(sess.UserID, fieldMode), sess.ModeID, 0)
	pipe.Set(ctx, key(sess.UserID, fieldSessionMinutes), strconv.Itoa(sess.SessionMinutes), 0)
	pipe.Set(ctx, key(sess.UserID, fieldReductionMinutes), strconv.Itoa(sess.ReductionMinutes), 0)
	pipe.Set(ctx, key(sess.UserID, fieldThreshold), strconv.Itoa(sess.StrikeThreshold), 0)
	pipe.Set(ctx, key(sess.UserID, fieldContacts), contacts, 0)
	pipe.Set(ctx, key(sess.UserID, fieldRecordID), sess.RecordID, 0)
	_, err = pipe.Exec(ctx)
	return err
}

// LoadSession reads the full session. The second return is false when no
// session is stored; a decoding failure returns an error so callers can
// fail safe to idle instead of acting on partial state.
func (s *Store) LoadSession(ctx context.Context, userID string) (Session, bool, error) {
	keys := make([]string, len(sessionFields))
	for i, f := range sessionFields {
		keys[i] = key(userID, f)
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return Session{}, false, err
	}
	if values[1] == nil {
		return Session{}, false, nil
	}

	raw := make([]string, len(values))
	for i, v := range values {
		if v != nil {
			str, ok := v.(string)
			if !ok {
				return Session{}, false, fmt.Errorf("safety store: unexpected value for %s", sessionFields[i])
			}
			raw[i] = str
		}
	}

	sess := Session{UserID: userID, ModeID: raw[6], RecordID: raw[11], Active: raw[1] == "1"}

	if err := json.Unmarshal([]byte(raw[0]), &sess.Timeline); err != nil {
		return Session{}, false, fmt.Errorf("safety store: timeline: %w", err)
	}
	if sess.StartTime, err = time.Parse(time.RFC3339Nano, raw[2]); err != nil {
		return Session{}, false, fmt.Errorf("safety store: start-time: %w", err)
	}
	if sess.StrikeCount, err = strconv.Atoi(raw[3]); err != nil {
		return Session{}, false, fmt.Errorf("safety store: strike: %w", err)
	}
	if err := json.Unmarshal([]byte(raw[4]), &sess.Handles); err != nil {
		return Session{}, false, fmt.Errorf("safety store: handles: %w", err)
	}
	if raw[5] != "" {
		deadline, err := time.Parse(time.RFC3339Nano, raw[5])
		if err != nil {
			return Session{}, false, fmt.Errorf("safety store: report-deadline: %w", err)
		}
		sess.ReportDeadline = &deadline
	}
	if sess.SessionMinutes, err = strconv.Atoi(raw[7]); err != nil {
		return Session{}, false, fmt.Errorf("safety store: session-minutes: %w", err)
	}
	if sess.ReductionMinutes, err = strconv.Atoi(raw[8]); err != nil {
		return Session{}, false, fmt.Errorf("safety store: reduction-minutes: %w", err)
	}
	if sess.StrikeThreshold, err = strconv.Atoi(raw[9]); err != nil {
		return Session{}, false, fmt.Errorf("safety store: threshold: %w", err)
	}
	if err := json.Unmarshal([]byte(raw[10]), &sess.ContactIDs); err != nil {
		return Session{}, false, fmt.Errorf("safety store: contacts: %w", err)
	}
	return sess, true, nil
}

func (s *Store) SetStrike(ctx context.Context, userID string, strike int) error {
	return s.rdb.Set(ctx, key(userID, fieldStrike), strconv.Itoa(strike), 0).Err()
}

func (s *Store) SetReportDeadline(ctx context.Context, userID string, deadline *time.Time) error {
	value := ""
	if deadline != nil {
		value = deadline.Format(time.RFC3339Nano)
	}
	return s.rdb.Set(ctx, key(userID, fieldReportDeadline), value, 0).Err()
}

func (s *Store) SetHandles(ctx context.Context, userID string, handles []notify.Handle) error {
	encoded, err := json.Marshal(handles)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key(userID, fieldHandles), encoded, 0).Err()
}

// Clear removes every session key for the user.
func (s *Store) Clear(ctx context.Context, userID string) error {
	keys := make([]string, len(sessionFields))
	for i, f := range sessionFields {
		keys[i] = key(userID, f)
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// ClearNotificationState drops only the notification bookkeeping, used on
// emergency stop where the session itself must survive.
func (s *Store) ClearNotificationState(ctx context.Context, userID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, key(userID, fieldHandles), "[]", 0)
	pipe.Set(ctx, key(userID, fieldReportDeadline), "", 0)
	_, err := pipe.Exec(ctx)
	return err
}

// Timeline reads just the stored event list, for handlers that only need
// the schedule.
func (s *Store) Timeline(ctx context.Context, userID string) ([]timeline.Event, error) {
	raw, err := s.rdb.Get(ctx, key(userID, fieldTimeline)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var events []timeline.Event
	if err := json.Unmarshal([]byte(raw), &events); err != nil {
		return nil, err
	}
	return events, nil
}
