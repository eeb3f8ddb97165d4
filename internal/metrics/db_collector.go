package metrics

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StartDBCollectors periodically refreshes the store gauges: outbox rows
// by status, slot history size and unexpired consumed references.
func StartDBCollectors(ctx context.Context, db *pgxpool.Pool, interval time.Duration, logger *log.Logger) {
	if db == nil {
		return
	}
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		updateDBGauges(ctx, db, logger)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				updateDBGauges(ctx, db, logger)
			}
		}
	}()
}

func updateDBGauges(ctx context.Context, db *pgxpool.Pool, logger *log.Logger) {
	{
		var cnt int64
		if err := db.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&cnt); err != nil {
			logger.Printf("metrics db query messages: %v", err)
		} else {
			SetMessagesStoredCount(cnt)
		}
	}

	{
		var cnt int64
		err := db.QueryRow(ctx, `SELECT COUNT(*) FROM consumed_references WHERE expires_at > NOW()`).Scan(&cnt)
		if err != nil {
			logger.Printf("metrics db query consumed_references: %v", err)
		} else {
			SetConsumedReferencesCount(cnt)
		}
	}

	{
		rows, err := db.Query(ctx, `SELECT status, COUNT(*) FROM outbox_messages GROUP BY status`)
		if err != nil {
			// table may not exist yet; skip this round
			return
		}
		defer rows.Close()

		var pending int64
		for rows.Next() {
			var status string
			var cnt int64
			if err := rows.Scan(&status, &cnt); err != nil {
				logger.Printf("metrics db scan outbox: %v", err)
				continue
			}
			SetOutboxStatusCount(status, cnt)
			if status == "pending" {
				pending = cnt
			}
		}
		SetOutboxPendingCount(pending)
	}
}
