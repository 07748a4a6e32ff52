package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"curatewatch/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	key            text PRIMARY KEY,
	kind           text NOT NULL,
	block_number   bigint NOT NULL,
	tx_hash        text NOT NULL,
	item_id        text,
	market_address text,
	market_name    text,
	chat_id        text NOT NULL,
	sent_at        timestamptz NOT NULL
)`

// Store provides Postgres persistence for the notification journal.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the notifications table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Ping reports connectivity, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PutNotificationBatch inserts delivered notifications, ignoring keys already
// recorded by a previous run.
func (s *Store) PutNotificationBatch(records []model.NotificationRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, record := range records {
		batch.Queue(`
			INSERT INTO notifications (
				key, kind, block_number, tx_hash, item_id, market_address, market_name, chat_id, sent_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (key) DO NOTHING
		`,
			record.Key,
			record.Kind,
			int64(record.BlockNumber),
			record.TxHash,
			record.ItemID,
			record.MarketAddress,
			record.MarketName,
			record.ChatID,
			record.SentAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
