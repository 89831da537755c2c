package internal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	collectionDaily  = "daily"
	collectionWeekly = "weekly"
)

// SQLiteScoreStore 以 SQLite 儲存成績
//
// 兩個集合放在同一張表，以 collection 欄位區分；id 自增，保留寫入順序。
type SQLiteScoreStore struct {
	db *sql.DB
}

// NewSQLiteScoreStore 開啟資料庫並執行遷移
//
// path 可以是 ":memory:"（測試用），此時連線池限制為單一連線，否則每個連線各自是一個資料庫。
func NewSQLiteScoreStore(path string) (*SQLiteScoreStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteScoreStore{db: db}, nil
}

// migrate 執行內嵌的 goose 遷移
func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Append 在同一個交易中寫入兩個集合
func (s *SQLiteScoreStore) Append(ctx context.Context, entry ScoreEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const insert = `INSERT INTO scores (collection, name, score, recorded_at, recorded_us) VALUES (?, ?, ?, ?, ?)`
	recordedAt := entry.Timestamp.Format(time.RFC3339Nano)
	for _, collection := range []string{collectionDaily, collectionWeekly} {
		if _, err := tx.ExecContext(ctx, insert,
			collection, entry.Name, entry.Score, recordedAt, entry.Timestamp.UnixMicro()); err != nil {
			return fmt.Errorf("failed to insert score: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit score: %w", err)
	}
	return nil
}

// Load 讀取兩個集合
func (s *SQLiteScoreStore) Load(ctx context.Context) (ScoreCollections, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, name, score, recorded_at FROM scores ORDER BY id`)
	if err != nil {
		return ScoreCollections{}, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	var collections ScoreCollections
	for rows.Next() {
		var (
			collection string
			entry      ScoreEntry
			recordedAt string
		)
		if err := rows.Scan(&collection, &entry.Name, &entry.Score, &recordedAt); err != nil {
			return ScoreCollections{}, fmt.Errorf("failed to scan score: %w", err)
		}
		if entry.Timestamp, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return ScoreCollections{}, fmt.Errorf("invalid recorded_at %q: %w", recordedAt, err)
		}

		switch collection {
		case collectionDaily:
			collections.Daily = append(collections.Daily, entry)
		case collectionWeekly:
			collections.Weekly = append(collections.Weekly, entry)
		}
	}
	if err := rows.Err(); err != nil {
		return ScoreCollections{}, fmt.Errorf("failed to iterate scores: %w", err)
	}

	return collections, nil
}

// Prune 刪除時間不晚於 cutoff 的成績
func (s *SQLiteScoreStore) Prune(ctx context.Context, dailyCutoff, weeklyCutoff time.Time) error {
	const del = `DELETE FROM scores WHERE collection = ? AND recorded_us <= ?`
	if _, err := s.db.ExecContext(ctx, del, collectionDaily, dailyCutoff.UnixMicro()); err != nil {
		return fmt.Errorf("failed to prune daily scores: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, del, collectionWeekly, weeklyCutoff.UnixMicro()); err != nil {
		return fmt.Errorf("failed to prune weekly scores: %w", err)
	}
	return nil
}

// Close 關閉資料庫
func (s *SQLiteScoreStore) Close() error {
	return s.db.Close()
}
