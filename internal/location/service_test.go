package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
)

var errLocation = errors.New("location error")

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestRecordAndLatest(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil)
	ctx := context.Background()

	mock.ExpectQuery(`INSERT INTO location_fixes`).
		WithArgs("user-1", 121.56, 25.03, 8.0, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	fix, err := svc.Record(ctx, Fix{UserID: "user-1", Lat: 25.03, Lng: 121.56, AccuracyM: 8})
	if err != nil || fix.ID != 1 {
		t.Fatalf("record: %v %+v", err, fix)
	}
	if fix.RecordedAt.IsZero() {
		t.Fatalf("recorded_at not defaulted")
	}

	mock.ExpectQuery(`SELECT id, user_id, ST_Y\(location::geometry\), ST_X\(location::geometry\)`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "lat", "lng", "accuracy_m", "recorded_at", "created_at"}).
			AddRow(int64(1), "user-1", 25.03, 121.56, 8.0, time.Now(), time.Now()))

	latest, err := svc.Latest(ctx, "user-1")
	if err != nil || latest.Lat != 25.03 {
		t.Fatalf("latest: %v %+v", err, latest)
	}
}

func TestHistory(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil)

	mock.ExpectQuery(`SELECT id, user_id, ST_Y\(location::geometry\), ST_X\(location::geometry\)`).
		WithArgs("user-1", 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "lat", "lng", "accuracy_m", "recorded_at", "created_at"}).
			AddRow(int64(2), "user-1", 25.04, 121.57, 5.0, time.Now(), time.Now()).
			AddRow(int64(1), "user-1", 25.03, 121.56, 8.0, time.Now().Add(-time.Minute), time.Now()))

	fixes, err := svc.History(context.Background(), "user-1", 0)
	if err != nil || len(fixes) != 2 {
		t.Fatalf("history: %v, %d fixes", err, len(fixes))
	}
}

func TestRecordInsertError(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil)

	mock.ExpectQuery(`INSERT INTO location_fixes`).
		WithArgs("user-1", 121.56, 25.03, 0.0, pgxmock.AnyArg()).
		WillReturnError(errLocation)

	if _, err := svc.Record(context.Background(), Fix{UserID: "user-1", Lat: 25.03, Lng: 121.56}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLatestNoRows(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock, nil)

	mock.ExpectQuery(`SELECT id, user_id, ST_Y\(location::geometry\), ST_X\(location::geometry\)`).
		WithArgs("user-2").
		WillReturnError(errLocation)

	if _, err := svc.Latest(context.Background(), "user-2"); err == nil {
		t.Fatalf("expected error")
	}
}
