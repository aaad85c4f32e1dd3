package location

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jensenyang2004/Safii-sub000/internal/db"
	"github.com/jensenyang2004/Safii-sub000/internal/stream"
)

// Service stores the periodic location fixes uploaded during tracking.
// The upload keeps running through an active emergency so contacts can
// see where the tracked user is.
type Service struct {
	db  db.Querier
	hub *stream.Hub
}

func NewService(q db.Querier, hub *stream.Hub) *Service {
	return &Service{db: q, hub: hub}
}

func (s *Service) Record(ctx context.Context, input Fix) (Fix, error) {
	if input.RecordedAt.IsZero() {
		input.RecordedAt = time.Now()
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO location_fixes (user_id, location, accuracy_m, recorded_at)
		VALUES ($1, ST_SetSRID(ST_MakePoint($2,$3), 4326)::geography, $4, $5)
		RETURNING id, created_at
	`, input.UserID, input.Lng, input.Lat, input.AccuracyM, input.RecordedAt)
	if err := row.Scan(&input.ID, &input.CreatedAt); err != nil {
		return Fix{}, err
	}

	if s.hub != nil {
		payload, _ := json.Marshal(input)
		s.hub.Broadcast(input.UserID, payload)
	}
	return input, nil
}

func (s *Service) Latest(ctx context.Context, userID string) (Fix, error) {
	var fix Fix
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, ST_Y(location::geometry), ST_X(location::geometry), COALESCE(accuracy_m,0), recorded_at, created_at
		FROM location_fixes
		WHERE user_id=$1
		ORDER BY recorded_at DESC
		LIMIT 1
	`, userID)
	if err := row.Scan(&fix.ID, &fix.UserID, &fix.Lat, &fix.Lng, &fix.AccuracyM, &fix.RecordedAt, &fix.CreatedAt); err != nil {
		return Fix{}, err
	}
	return fix, nil
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]Fix, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, ST_Y(location::geometry), ST_X(location::geometry), COALESCE(accuracy_m,0), recorded_at, created_at
		FROM location_fixes
		WHERE user_id=$1
		ORDER BY recorded_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fixes []Fix
	for rows.Next() {
		var fix Fix
		if err := rows.Scan(&fix.ID, &fix.UserID, &fix.Lat, &fix.Lng, &fix.AccuracyM, &fix.RecordedAt, &fix.CreatedAt); err != nil {
			return nil, err
		}
		fixes = append(fixes, fix)
	}
	return fixes, rows.Err()
}
