package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arklim/continuous-auth/internal/core/port"
	"github.com/arklim/continuous-auth/internal/repository"
)

// CredentialRepository implements port.CredentialStore backed by PostgreSQL.
// Only the Argon2id encoded hash ever leaves the store; raw PINs are never
// persisted.
type CredentialRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.CredentialStore = (*CredentialRepository)(nil)

// NewCredentialRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewCredentialRepository(exec pgExecutor) *CredentialRepository {
	repo := &CredentialRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// PINHash fetches the stored step-up PIN hash for the user.
func (r *CredentialRepository) PINHash(ctx context.Context, userID string) (string, error) {
	stmt, args, err := r.builder.
		Select("pin_hash").
		From("authd.user_credentials").
		Where(squirrel.Eq{"user_id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select pin hash sql: %w", err)
	}

	var hash string
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("select pin hash: %w", err)
	}

	return hash, nil
}

// UpsertPINHash stores or replaces the user's step-up PIN hash.
func (r *CredentialRepository) UpsertPINHash(ctx context.Context, userID string, hash string) error {
	stmt := `
        INSERT INTO authd.user_credentials (user_id, pin_hash, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (user_id)
        DO UPDATE SET pin_hash = EXCLUDED.pin_hash, updated_at = NOW()
    `

	if _, err := r.exec.Exec(ctx, stmt, userID, hash); err != nil {
		return fmt.Errorf("upsert pin hash: %w", err)
	}

	return nil
}
