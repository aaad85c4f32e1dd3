package safety

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func newTestApp(t *testing.T) (*fiber.App, *Engine, *testClock) {
	t.Helper()
	eng, _, _, clock := newTestEngine(t)

	app := fiber.New()
	asUser := func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	}
	RegisterRoutes(app.Group("/safety"), eng, asUser)
	return app, eng, clock
}

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	encoded, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request %s: %v", path, err)
	}
	return resp
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	app, _, clock := newTestApp(t)

	resp := postJSON(t, app, "/safety/sessions", StartParams{
		ModeID:     "walk-home",
		ContactIDs: []string{"c1"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status: %d", resp.StatusCode)
	}
	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Phase != PhaseTracking {
		t.Fatalf("expected tracking, got %s", state.Phase)
	}

	clock.set(engineStart.Add(31 * time.Minute))
	req := httptest.NewRequest(http.MethodGet, "/safety/sessions/state", nil)
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("state status: %v %d", err, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Phase != PhaseReportDue {
		t.Fatalf("expected report_due, got %s", state.Phase)
	}

	resp = postJSON(t, app, "/safety/sessions/report", fiber.Map{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report status: %d", resp.StatusCode)
	}

	resp = postJSON(t, app, "/safety/sessions/stop", fiber.Map{"reason": "user"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status: %d", resp.StatusCode)
	}
}

func TestStartRequiresContacts(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := postJSON(t, app, "/safety/sessions", StartParams{ModeID: "walk-home"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d", resp.StatusCode)
	}
}

func TestStartConflictWhenActive(t *testing.T) {
	app, _, _ := newTestApp(t)

	params := StartParams{ContactIDs: []string{"c1"}}
	if resp := postJSON(t, app, "/safety/sessions", params); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first start failed: %d", resp.StatusCode)
	}
	if resp := postJSON(t, app, "/safety/sessions", params); resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict, got %d", resp.StatusCode)
	}
}

func TestReportWithoutSessionNotFound(t *testing.T) {
	app, _, _ := newTestApp(t)

	resp := postJSON(t, app, "/safety/sessions/report", fiber.Map{})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %d", resp.StatusCode)
	}
}

func TestNotificationFiredHint(t *testing.T) {
	app, _, _ := newTestApp(t)

	if resp := postJSON(t, app, "/safety/sessions", StartParams{ContactIDs: []string{"c1"}}); resp.StatusCode != http.StatusCreated {
		t.Fatalf("start failed")
	}

	resp := postJSON(t, app, "/safety/notifications/fired", fiber.Map{
		"type":             "missed_report",
		"strike":           1,
		"event_time":       engineStart.Add(33 * time.Minute).UnixMilli(),
		"strike_threshold": 3,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("hint status: %d", resp.StatusCode)
	}
	var state State
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Clock still at the start: the stale hint must not manufacture state.
	if state.Phase != PhaseTracking || state.StrikeCount != 0 {
		t.Fatalf("hint was trusted: %+v", state)
	}
}

func TestRoutesRequireUser(t *testing.T) {
	eng, _, _, _ := newTestEngine(t)
	app := fiber.New()
	RegisterRoutes(app.Group("/safety"), eng, func(c *fiber.Ctx) error { return c.Next() })

	resp := postJSON(t, app, "/safety/sessions", StartParams{ContactIDs: []string{"c1"}})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", resp.StatusCode)
	}
}
