package contact

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
)

var errContact = errors.New("contact error")

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestAddListRemove(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)
	ctx := context.Background()

	mock.ExpectQuery(`INSERT INTO emergency_contacts`).
		WithArgs("user-1", "contact-1", "Mum").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	added, err := svc.Add(ctx, Contact{UserID: "user-1", ContactID: "contact-1", Name: "Mum"})
	if err != nil || added.CreatedAt.IsZero() {
		t.Fatalf("add: %v", err)
	}

	mock.ExpectQuery(`SELECT user_id, contact_id, contact_name, created_at`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "contact_id", "contact_name", "created_at"}).
			AddRow("user-1", "contact-1", "Mum", time.Now()))

	contacts, err := svc.List(ctx, "user-1")
	if err != nil || len(contacts) != 1 || contacts[0].Name != "Mum" {
		t.Fatalf("list: %v %+v", err, contacts)
	}

	mock.ExpectExec(`DELETE FROM emergency_contacts`).
		WithArgs("user-1", "contact-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := svc.Remove(ctx, "user-1", "contact-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPushTokenLookups(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE users SET push_token`).
		WithArgs("user-1", "ExponentPushToken[abc]").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	if err := svc.SetPushToken(ctx, "user-1", "ExponentPushToken[abc]"); err != nil {
		t.Fatalf("set token: %v", err)
	}

	mock.ExpectQuery(`SELECT COALESCE\(push_token,''\) FROM users`).
		WithArgs("contact-1").
		WillReturnRows(pgxmock.NewRows([]string{"push_token"}).AddRow("ExponentPushToken[xyz]"))
	token, err := svc.PushToken(ctx, "contact-1")
	if err != nil || token != "ExponentPushToken[xyz]" {
		t.Fatalf("push token: %q %v", token, err)
	}

	mock.ExpectQuery(`SELECT COALESCE\(NULLIF\(full_name,''\), username\) FROM users`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("Alex Chen"))
	name, err := svc.DisplayName(ctx, "user-1")
	if err != nil || name != "Alex Chen" {
		t.Fatalf("display name: %q %v", name, err)
	}
}

func TestListQueryError(t *testing.T) {
	mock := newMock(t)
	svc := NewService(mock)

	mock.ExpectQuery(`SELECT user_id, contact_id, contact_name, created_at`).
		WithArgs("user-1").
		WillReturnError(errContact)

	if _, err := svc.List(context.Background(), "user-1"); err == nil {
		t.Fatalf("expected error")
	}
}
