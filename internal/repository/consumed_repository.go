package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"message_relay/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConsumedRepository tracks payment references that already paid for a
// swap. The first confirmation records its outcome here; replays read it
// back instead of swapping again.
type ConsumedRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewConsumedRepository(db *pgxpool.Pool) *ConsumedRepository {
	return &ConsumedRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// GetTx returns the recorded outcome for referenceID, or ErrNotFound if the
// reference has not been consumed yet (or its record already expired).
func (r *ConsumedRepository) GetTx(ctx context.Context, tx pgx.Tx, referenceID string) (*models.ConsumedReference, error) {
	if referenceID == "" {
		return nil, fmt.Errorf("referenceID is empty")
	}

	query := r.sb.
		Select("reference_id", "previous_text", "saved", "consumed_at", "expires_at").
		From("consumed_references").
		Where(sq.Eq{"reference_id": referenceID}).
		Where(sq.Expr("expires_at > NOW()"))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build consumed select sql: %w", err)
	}

	var (
		c        models.ConsumedReference
		previous pgtype.Text
	)
	err = tx.QueryRow(ctx, sqlStr, args...).Scan(
		&c.ReferenceID,
		&previous,
		&c.Saved,
		&c.ConsumedAt,
		&c.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query consumed reference: %w", err)
	}

	if previous.Valid {
		s := previous.String
		c.PreviousText = &s
	}

	return &c, nil
}

// RecordTx marks referenceID as consumed with the outcome of its first
// confirmation. Only successful exchanges are recorded, so a failed
// confirmation stays retryable.
func (r *ConsumedRepository) RecordTx(ctx context.Context, tx pgx.Tx, referenceID string, previous *string, saved bool, ttl time.Duration) error {
	if referenceID == "" {
		return fmt.Errorf("referenceID is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	query := r.sb.
		Insert("consumed_references").
		Columns("reference_id", "previous_text", "saved", "expires_at").
		Values(referenceID, previous, saved, sq.Expr("NOW() + make_interval(secs => ?)", ttl.Seconds()))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build consumed insert sql: %w", err)
	}

	if _, err := tx.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert consumed reference: %w", err)
	}

	return nil
}

// PurgeExpired deletes consumed-reference rows past their expiry.
func (r *ConsumedRepository) PurgeExpired(ctx context.Context) (int, error) {
	query := r.sb.
		Delete("consumed_references").
		Where(sq.Expr("expires_at <= NOW()"))

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build consumed purge sql: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("purge consumed references: %w", err)
	}

	return int(tag.RowsAffected()), nil
}
