package storage

import (
	"context"
	"strings"

	"github.com/gildedshear/platform/libs/db"
)

// ProfileID is the key of the single barber_profile row.
const ProfileID = "main"

type ProfileRepository struct {
	db db.Querier
}

func NewProfileRepository(q db.Querier) *ProfileRepository {
	return &ProfileRepository{db: q}
}

// AddPushToken creates the profile on first use and appends token if it is not
// already registered. It returns the resulting token count.
func (r *ProfileRepository) AddPushToken(ctx context.Context, token string) (int, error) {
	token = strings.TrimSpace(token)
	var count int
	err := r.db.QueryRow(ctx, `
		INSERT INTO barber_profile (id, push_tokens)
		VALUES ($1, ARRAY[$2::text])
		ON CONFLICT (id) DO UPDATE
		SET push_tokens = CASE
				WHEN $2 = ANY(barber_profile.push_tokens) THEN barber_profile.push_tokens
				ELSE array_append(barber_profile.push_tokens, $2)
			END,
			updated_at = now()
		RETURNING cardinality(push_tokens)
	`, ProfileID, token).Scan(&count)
	return count, err
}
