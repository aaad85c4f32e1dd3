package contact

import (
	"context"

	"github.com/jensenyang2004/Safii-sub000/internal/db"
)

type Service struct {
	db db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

func (s *Service) Add(ctx context.Context, input Contact) (Contact, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO emergency_contacts (user_id, contact_id, contact_name)
		VALUES ($1,$2,$3)
		ON CONFLICT (user_id, contact_id) DO UPDATE SET contact_name = EXCLUDED.contact_name
		RETURNING created_at
	`, input.UserID, input.ContactID, input.Name)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Contact{}, err
	}
	return input, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]Contact, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, contact_id, contact_name, created_at
		FROM emergency_contacts WHERE user_id=$1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.UserID, &c.ContactID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (s *Service) Remove(ctx context.Context, userID, contactID string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM emergency_contacts WHERE user_id=$1 AND contact_id=$2
	`, userID, contactID)
	return err
}

// SetPushToken records the caller's own device token, used when they are
// someone's emergency contact.
func (s *Service) SetPushToken(ctx context.Context, userID, token string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE users SET push_token=$2, updated_at=NOW() WHERE id=$1
	`, userID, token)
	return err
}

// PushToken returns the contact's device token; empty when the contact
// has never registered one.
func (s *Service) PushToken(ctx context.Context, contactID string) (string, error) {
	var token string
	row := s.db.QueryRow(ctx, `
		SELECT COALESCE(push_token,'') FROM users WHERE id=$1
	`, contactID)
	if err := row.Scan(&token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	row := s.db.QueryRow(ctx, `
		SELECT COALESCE(NULLIF(full_name,''), username) FROM users WHERE id=$1
	`, userID)
	if err := row.Scan(&name); err != nil {
		return "", err
	}
	return name, nil
}
