package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// ParticipantStore answers the one question the fan-out core asks the
// persistence layer: who is in conversation X, right now. Results are
// never cached; membership may change between two calls.
type ParticipantStore struct {
	pool *pgxpool.Pool
}

func NewParticipantStore(pool *pgxpool.Pool) *ParticipantStore {
	return &ParticipantStore{pool: pool}
}

// OpenPool dials the persistence store.
func OpenPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "open database pool")
	}
	return pool, nil
}

func (s *ParticipantStore) ListParticipants(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT "userId" FROM "Participant" WHERE "conversationId" = $1`, conversationID)
	if err != nil {
		return nil, errors.Wrapf(err, "query participants conv=%s", conversationID)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, errors.Wrap(err, "scan participant")
		}
		out = append(out, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate participants")
	}
	return out, nil
}
