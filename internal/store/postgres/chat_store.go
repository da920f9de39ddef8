package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ciyexa/cryptoagent/internal/domain"
)

const chatColumns = `id, request_id, query, prompt, response, source, asset_id, latency_ms, created_at`

// ChatStore implements domain.ChatStore using PostgreSQL.
type ChatStore struct {
	pool *pgxpool.Pool
}

// NewChatStore creates a new ChatStore backed by the given connection pool.
func NewChatStore(pool *pgxpool.Pool) *ChatStore {
	return &ChatStore{pool: pool}
}

// Insert stores one exchange. Re-inserting an existing id is a no-op.
func (s *ChatStore) Insert(ctx context.Context, rec domain.ChatRecord) error {
	const query = `
		INSERT INTO chat_exchanges (` + chatColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.RequestID, rec.Query, rec.Prompt, rec.Response,
		string(rec.Source), rec.AssetID, rec.LatencyMs, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert chat exchange %s: %w", rec.ID, err)
	}
	return nil
}

// List returns exchanges newest first.
func (s *ChatStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.ChatRecord, error) {
	query, args := listQuery(`SELECT `+chatColumns+` FROM chat_exchanges`, opts)
	records, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list chat exchanges: %w", err)
	}
	return records, nil
}

// ListBefore returns every exchange created strictly before the cutoff,
// oldest first.
func (s *ChatStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ChatRecord, error) {
	const query = `SELECT ` + chatColumns + ` FROM chat_exchanges WHERE created_at < $1 ORDER BY created_at ASC`
	records, err := s.query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list chat exchanges before %s: %w", before.Format(time.RFC3339), err)
	}
	return records, nil
}

// DeleteBefore removes exchanges created strictly before the cutoff and
// returns how many were deleted.
func (s *ChatStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chat_exchanges WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete chat exchanges before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func (s *ChatStore) query(ctx context.Context, query string, args ...any) ([]domain.ChatRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanChatRecord)
}

func scanChatRecord(row pgx.CollectableRow) (domain.ChatRecord, error) {
	var (
		rec    domain.ChatRecord
		source string
	)
	err := row.Scan(
		&rec.ID, &rec.RequestID, &rec.Query, &rec.Prompt, &rec.Response,
		&source, &rec.AssetID, &rec.LatencyMs, &rec.CreatedAt,
	)
	rec.Source = domain.Source(source)
	return rec, err
}

var _ domain.ChatStore = (*ChatStore)(nil)
