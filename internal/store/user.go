package store

import (
	"context"

	"yakssok-api/internal/model"
)

// UpsertGoogleUser creates the user or refreshes its profile. An empty
// GoogleRefreshToken keeps the stored one: Google only returns a refresh
// token on the first consent.
func (s *Store) UpsertGoogleUser(ctx context.Context, u *model.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, email, name, google_refresh_token)
		 VALUES ($1,$2,$3,$4)
		 ON CONFLICT (id) DO UPDATE SET
		     email = EXCLUDED.email,
		     name = EXCLUDED.name,
		     google_refresh_token = COALESCE(NULLIF(EXCLUDED.google_refresh_token, ''), users.google_refresh_token),
		     updated_at = NOW()
		 RETURNING google_refresh_token, created_at, updated_at`,
		u.ID, u.Email, u.Name, u.GoogleRefreshToken,
	).Scan(&u.GoogleRefreshToken, &u.CreatedAt, &u.UpdatedAt)
	return translate(err)
}

func (s *Store) UserByID(ctx context.Context, id string) (*model.User, error) {
	u := &model.User{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, google_refresh_token, created_at, updated_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.GoogleRefreshToken, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}
