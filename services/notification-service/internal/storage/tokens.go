package storage

import (
	"context"
	"errors"

	"github.com/gildedshear/platform/libs/db"
	"github.com/jackc/pgx/v5"
)

// ProfileID is the key of the single barber_profile row.
const ProfileID = "main"

type TokenRepository struct {
	db db.Querier
}

func NewTokenRepository(q db.Querier) *TokenRepository {
	return &TokenRepository{db: q}
}

// PushTokens returns the registered device tokens. A missing profile yields none.
func (r *TokenRepository) PushTokens(ctx context.Context) ([]string, error) {
	var tokens []string
	err := r.db.QueryRow(ctx, `
		SELECT push_tokens FROM barber_profile WHERE id = $1
	`, ProfileID).Scan(&tokens)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return tokens, err
}

// RemoveTokens drops tokens the push provider reported as unregistered.
func (r *TokenRepository) RemoveTokens(ctx context.Context, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE barber_profile
		SET push_tokens = ARRAY(
				SELECT t FROM unnest(push_tokens) AS t WHERE t <> ALL($2::text[])
			),
			updated_at = now()
		WHERE id = $1
	`, ProfileID, tokens)
	return err
}
