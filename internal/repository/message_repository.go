package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"message_relay/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// slotLockKey is the pg_advisory_xact_lock key guarding the single message
// slot. There is exactly one slot, so one constant key is enough.
const slotLockKey = int64(0x6d736773776170) // "msgswap"

type MessageRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Latest returns the current message, or nil if the store has never been
// written. An empty store is a normal state, not an error.
func (r *MessageRepository) Latest(ctx context.Context) (*models.Message, error) {
	return r.latest(ctx, r.db)
}

func (r *MessageRepository) LatestTx(ctx context.Context, tx pgx.Tx) (*models.Message, error) {
	return r.latest(ctx, tx)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *MessageRepository) latest(ctx context.Context, q queryRower) (*models.Message, error) {
	query := r.sb.
		Select("text", "created_at").
		From("messages").
		OrderBy("created_at DESC", "id DESC").
		Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest message sql: %w", err)
	}

	var m models.Message
	if err := q.QueryRow(ctx, sqlStr, args...).Scan(&m.Text, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest message: %w", err)
	}

	return &m, nil
}

// AppendTx installs text as the new current message. The created_at is
// assigned by the database at write time.
func (r *MessageRepository) AppendTx(ctx context.Context, tx pgx.Tx, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is empty")
	}

	query := r.sb.
		Insert("messages").
		Columns("text").
		Values(text).
		Suffix("RETURNING text, created_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert message sql: %w", err)
	}

	var m models.Message
	if err := tx.QueryRow(ctx, sqlStr, args...).Scan(&m.Text, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return &m, nil
}

// LockSlotTx serializes concurrent swaps. The lock is released when the
// transaction commits or rolls back.
func (r *MessageRepository) LockSlotTx(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", slotLockKey); err != nil {
		return fmt.Errorf("lock message slot: %w", err)
	}
	return nil
}
