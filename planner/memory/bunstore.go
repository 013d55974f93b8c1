package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/tiles-ai/tiles-planner/planner/contract"
)

type PostgresConfig struct {
	DSN     string        `split_words:"true"`
	Timeout time.Duration `split_words:"true" default:"5s"`
}

type memoryRow struct {
	bun.BaseModel `bun:"table:memory_records"`

	UserID       string          `bun:"user_id,pk"`
	SessionID    string          `bun:"session_id,pk"`
	Summary      string          `bun:"summary"`
	ActiveTopics json.RawMessage `bun:"active_topics,type:jsonb"`
	ContentRefs  json.RawMessage `bun:"content_refs,type:jsonb"`
	UpdatedAt    time.Time       `bun:"updated_at"`
}

// BunStore persists MemoryRecords in Postgres through bun.
type BunStore struct {
	db *bun.DB
}

var _ contractx.MemoryStore = (*BunStore)(nil)

func NewBunStore(cfg PostgresConfig) (*BunStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return &BunStore{db: db}, nil
}

// EnsureSchema creates the memory table when it does not exist.
func (s *BunStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*memoryRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create memory table: %w", err)
	}
	return nil
}

func (s *BunStore) Load(ctx context.Context, userID, sessionID string) (*contractx.MemoryRecord, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: user and session ids are required", contractx.ErrValidation)
	}

	row := new(memoryRow)
	err := s.db.NewSelect().
		Model(row).
		Where("user_id = ?", userID).
		Where("session_id = ?", sessionID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select memory record: %w", err)
	}
	return rowToRecord(row)
}

func (s *BunStore) LoadUser(ctx context.Context, userID string, limit int) ([]contractx.MemoryRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", contractx.ErrValidation)
	}
	if limit <= 0 {
		limit = 10
	}

	var rows []memoryRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select user memory: %w", err)
	}

	records := make([]contractx.MemoryRecord, 0, len(rows))
	for i := range rows {
		rec, err := rowToRecord(&rows[i])
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, nil
}

func (s *BunStore) Save(ctx context.Context, rec *contractx.MemoryRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", contractx.ErrMemoryWrite)
	}
	row, err := recordToRow(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrMemoryWrite, err)
	}

	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (user_id, session_id) DO UPDATE").
		Set("summary = EXCLUDED.summary").
		Set("active_topics = EXCLUDED.active_topics").
		Set("content_refs = EXCLUDED.content_refs").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrMemoryWrite, err)
	}
	return nil
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

func rowToRecord(row *memoryRow) (*contractx.MemoryRecord, error) {
	rec := &contractx.MemoryRecord{
		UserID:    row.UserID,
		SessionID: row.SessionID,
		Summary:   row.Summary,
		UpdatedAt: row.UpdatedAt,
	}
	if len(row.ActiveTopics) > 0 {
		if err := json.Unmarshal(row.ActiveTopics, &rec.ActiveTopics); err != nil {
			return nil, fmt.Errorf("decode active topics: %w", err)
		}
	}
	if len(row.ContentRefs) > 0 {
		if err := json.Unmarshal(row.ContentRefs, &rec.ContentRefs); err != nil {
			return nil, fmt.Errorf("decode content refs: %w", err)
		}
	}
	return rec, nil
}

func recordToRow(rec *contractx.MemoryRecord) (*memoryRow, error) {
	topics, err := json.Marshal(rec.ActiveTopics)
	if err != nil {
		return nil, fmt.Errorf("encode active topics: %w", err)
	}
	refs, err := json.Marshal(rec.ContentRefs)
	if err != nil {
		return nil, fmt.Errorf("encode content refs: %w", err)
	}

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	return &memoryRow{
		UserID:       rec.UserID,
		SessionID:    rec.SessionID,
		Summary:      rec.Summary,
		ActiveTopics: topics,
		ContentRefs:  refs,
		UpdatedAt:    updatedAt,
	}, nil
}
