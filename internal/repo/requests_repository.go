package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Submission is the single local record kept per chat user: who registered,
// which partner code they confirmed and which CRM record it resolved to.
type Submission struct {
	UserID          int64      `json:"user_id"`
	Username        *string    `json:"username"`
	FirstName       *string    `json:"first_name"`
	LastName        *string    `json:"last_name"`
	PhoneNumber     string     `json:"phone_number"`
	PartnerCode     string     `json:"partner_code"`
	BitrixContactID *int64     `json:"bitrix_contact_id"`
	EntityType      *string    `json:"entity_type"`
	CreatedAt       *time.Time `json:"created_at"`
}

type RequestsRepository struct {
	pool *pgxpool.Pool
}

func NewRequestsRepository(pool *pgxpool.Pool) *RequestsRepository {
	return &RequestsRepository{pool: pool}
}

func (r *RequestsRepository) Migrate(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS partner_requests (
  user_id            bigint PRIMARY KEY,
  username           text,
  first_name         text,
  last_name          text,
  phone_number       text NOT NULL,
  partner_code       text NOT NULL,
  bitrix_contact_id  bigint,
  entity_type        text,
  created_at         timestamptz NOT NULL DEFAULT now()
);
`
	_, err := r.pool.Exec(ctx, ddl)
	return err
}

// SaveSubmission stores at most one row per user; re-submission overwrites
// the previous row.
func (r *RequestsRepository) SaveSubmission(ctx context.Context, s Submission) error {
	sql := `
INSERT INTO partner_requests (
  user_id, username, first_name, last_name,
  phone_number, partner_code, bitrix_contact_id, entity_type, created_at
) VALUES (
  $1,$2,$3,$4,
  $5,$6,$7,$8, now()
)
ON CONFLICT (user_id) DO UPDATE SET
  username = EXCLUDED.username,
  first_name = EXCLUDED.first_name,
  last_name = EXCLUDED.last_name,
  phone_number = EXCLUDED.phone_number,
  partner_code = EXCLUDED.partner_code,
  bitrix_contact_id = EXCLUDED.bitrix_contact_id,
  entity_type = EXCLUDED.entity_type,
  created_at = now();
`
	_, err := r.pool.Exec(ctx, sql,
		s.UserID, s.Username, s.FirstName, s.LastName,
		s.PhoneNumber, s.PartnerCode, s.BitrixContactID, s.EntityType,
	)
	return err
}

// GetByUser returns nil when the user has never registered.
func (r *RequestsRepository) GetByUser(ctx context.Context, userID int64) (*Submission, error) {
	var s Submission
	err := r.pool.QueryRow(ctx, `
SELECT user_id, username, first_name, last_name,
       phone_number, partner_code, bitrix_contact_id, entity_type, created_at
FROM partner_requests
WHERE user_id = $1
`, userID).Scan(
		&s.UserID, &s.Username, &s.FirstName, &s.LastName,
		&s.PhoneNumber, &s.PartnerCode, &s.BitrixContactID, &s.EntityType, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *RequestsRepository) RecentSubmissions(ctx context.Context, limit int) ([]Submission, error) {
	rows, err := r.pool.Query(ctx, `
SELECT user_id, username, first_name, last_name,
       phone_number, partner_code, bitrix_contact_id, entity_type, created_at
FROM partner_requests
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Submission, 0)
	for rows.Next() {
		var s Submission
		if err := rows.Scan(
			&s.UserID, &s.Username, &s.FirstName, &s.LastName,
			&s.PhoneNumber, &s.PartnerCode, &s.BitrixContactID, &s.EntityType, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
