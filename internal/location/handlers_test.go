package location

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func newApp(mock pgxmock.PgxPoolIface) *fiber.App {
	app := fiber.New()
	asUser := func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	}
	RegisterRoutes(app.Group("/location"), NewService(mock, nil), asUser)
	return app
}

func TestLocationHandlers(t *testing.T) {
	mock := newMock(t)
	app := newApp(mock)

	mock.ExpectQuery(`INSERT INTO location_fixes`).
		WithArgs("user-1", 121.56, 25.03, 0.0, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))

	body, _ := json.Marshal(Fix{Lat: 25.03, Lng: 121.56})
	req := httptest.NewRequest(http.MethodPost, "/location/fixes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("record status: %v %d", err, resp.StatusCode)
	}

	mock.ExpectQuery(`SELECT id, user_id, ST_Y\(location::geometry\), ST_X\(location::geometry\)`).
		WithArgs("user-9").
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "lat", "lng", "accuracy_m", "recorded_at", "created_at"}).
			AddRow(int64(3), "user-9", 25.0, 121.5, 0.0, time.Now(), time.Now()))

	req = httptest.NewRequest(http.MethodGet, "/location/fixes/latest/user-9", nil)
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("latest status: %v %d", err, resp.StatusCode)
	}
}

func TestLocationLatestNotFound(t *testing.T) {
	mock := newMock(t)
	app := newApp(mock)

	mock.ExpectQuery(`SELECT id, user_id, ST_Y\(location::geometry\), ST_X\(location::geometry\)`).
		WithArgs("ghost").
		WillReturnError(errLocation)

	req := httptest.NewRequest(http.MethodGet, "/location/fixes/latest/ghost", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %v %d", err, resp.StatusCode)
	}
}

func TestLocationRecordBadRequest(t *testing.T) {
	mock := newMock(t)
	app := newApp(mock)

	req := httptest.NewRequest(http.MethodPost, "/location/fixes", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %v %d", err, resp.StatusCode)
	}
}
