package agent

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"HydroMed/internal/reminder"
)

const (
	keyHydrationState   = "hydration_state"
	keyReminderMetadata = "reminder_metadata"

	stateRetention = 8 * 24 * time.Hour
)

// LocalEntry 本地饮水记录
type LocalEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	AmountML  int       `json:"amount_ml"`
}

// HydrationState 本地饮水状态
type HydrationState struct {
	Entries []LocalEntry `json:"entries"`
	Missed  []time.Time  `json:"missed"`
	GoalML  int          `json:"goal"`
}

// ConsumedOn 某天的饮水总量
func (s HydrationState) ConsumedOn(day time.Time) int {
	y, m, d := day.Date()
	total := 0
	for _, e := range s.Entries {
		ey, em, ed := e.Timestamp.In(day.Location()).Date()
		if ey == y && em == m && ed == d {
			total += e.AmountML
		}
	}
	return total
}

func (s *HydrationState) prune(now time.Time) {
	cutoff := now.Add(-stateRetention)
	kept := s.Entries[:0]
	for _, e := range s.Entries {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	s.Entries = kept

	missed := s.Missed[:0]
	for _, t := range s.Missed {
		if t.After(cutoff) {
			missed = append(missed, t)
		}
	}
	s.Missed = missed
}

// OutboxItem 一次待重放的同步请求
type OutboxItem struct {
	ID            string
	Method        string
	Path          string
	Body          []byte
	LastError     string
	Attempts      int
	NextAttemptAt time.Time
	CreatedAt     time.Time
}

// LocalStore 设备端 SQLite 存储：kv 表保存饮水状态和提醒元数据，outbox 表保存失败的同步
// 同一设备只有一个 agent 进程写入
type LocalStore struct {
	db *sql.DB
}

func OpenStore(path string) (*LocalStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}
	// :memory: 下每个连接是独立的库
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &LocalStore{db: db}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS kv (
		key        TEXT    PRIMARY KEY,
		value      TEXT    NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id              TEXT    PRIMARY KEY,
		method          TEXT    NOT NULL,
		path            TEXT    NOT NULL,
		body            BLOB,
		attempts        INTEGER NOT NULL DEFAULT 0,
		next_attempt_at INTEGER NOT NULL,
		last_error      TEXT    NOT NULL DEFAULT '',
		created_at      INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_next_attempt ON outbox (next_attempt_at)`,
}

func createTables(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}

func (s *LocalStore) getJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *LocalStore) putJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// LoadHydration 不存在时返回零值，由调用方补默认目标
func (s *LocalStore) LoadHydration(ctx context.Context) (HydrationState, error) {
	var state HydrationState
	if _, err := s.getJSON(ctx, keyHydrationState, &state); err != nil {
		return HydrationState{}, err
	}
	return state, nil
}

// SaveHydration 写入前清理过期记录
func (s *LocalStore) SaveHydration(ctx context.Context, state HydrationState, now time.Time) error {
	state.prune(now)
	return s.putJSON(ctx, keyHydrationState, state)
}

func (s *LocalStore) reminders(ctx context.Context) (map[string]reminder.Metadata, error) {
	items := make(map[string]reminder.Metadata)
	if _, err := s.getJSON(ctx, keyReminderMetadata, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *LocalStore) SaveReminder(ctx context.Context, m reminder.Metadata) error {
	items, err := s.reminders(ctx)
	if err != nil {
		return err
	}
	items[m.ID] = m
	return s.putJSON(ctx, keyReminderMetadata, items)
}

func (s *LocalStore) DeleteReminder(ctx context.Context, id string) error {
	items, err := s.reminders(ctx)
	if err != nil {
		return err
	}
	if _, ok := items[id]; !ok {
		return nil
	}
	delete(items, id)
	return s.putJSON(ctx, keyReminderMetadata, items)
}

func (s *LocalStore) LoadReminders(ctx context.Context) ([]reminder.Metadata, error) {
	items, err := s.reminders(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]reminder.Metadata, 0, len(items))
	for _, m := range items {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *LocalStore) EnqueueOutbox(ctx context.Context, item OutboxItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outbox (id, method, path, body, attempts, next_attempt_at, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Method, item.Path, item.Body, item.Attempts,
		item.NextAttemptAt.UnixNano(), item.LastError, item.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox item: %w", err)
	}
	return nil
}

// DueOutbox 按创建顺序返回已到重试时间的条目
func (s *LocalStore) DueOutbox(ctx context.Context, now time.Time, limit int) ([]OutboxItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, method, path, body, attempts, next_attempt_at, last_error, created_at
		FROM outbox WHERE next_attempt_at <= ? ORDER BY created_at ASC LIMIT ?
	`, now.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var items []OutboxItem
	for rows.Next() {
		var (
			item          OutboxItem
			next, created int64
		)
		if err := rows.Scan(&item.ID, &item.Method, &item.Path, &item.Body, &item.Attempts, &next, &item.LastError, &created); err != nil {
			return nil, fmt.Errorf("failed to scan outbox item: %w", err)
		}
		item.NextAttemptAt = time.Unix(0, next)
		item.CreatedAt = time.Unix(0, created)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *LocalStore) DeleteOutbox(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete outbox item: %w", err)
	}
	return nil
}

func (s *LocalStore) RescheduleOutbox(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET attempts = ?, next_attempt_at = ?, last_error = ? WHERE id = ?
	`, attempts, next.UnixNano(), lastErr, id)
	if err != nil {
		return fmt.Errorf("failed to reschedule outbox item: %w", err)
	}
	return nil
}

func (s *LocalStore) CountOutbox(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return n, nil
}
