package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iabetor/jatts/internal/database"
	"github.com/iabetor/jatts/internal/logger"
)

// ErrNotFound 表示没有对应的合成记录。
var ErrNotFound = errors.New("generation not found")

// Entry 是一次合成请求的记录，成功与失败都会记录。
type Entry struct {
	ID          string
	Filename    string // 失败时为空
	Model       string
	Prompt      string
	Annotated   string
	Description string
	Bytes       int64
	SampleRate  int
	Duration    time.Duration
	Elapsed     time.Duration
	Error       string
	CreatedAt   time.Time
}

// OK 返回合成是否成功。
func (e *Entry) OK() bool {
	return e.Error == ""
}

// Store 使用 SQLite 持久化合成记录。
type Store struct {
	db *database.DB
}

// NewStore 基于已打开的数据库创建记录存储。
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Open 打开数据库文件并创建记录存储。
func Open(path string) (*Store, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	logger.Infof("[history] 合成记录已启用 (db=%s)", db.Path())
	return NewStore(db), nil
}

// Close 关闭底层数据库。
func (s *Store) Close() error {
	return s.db.Close()
}

// Record 写入一条记录。ID 与 CreatedAt 为空时自动填充。
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO generations
			(id, filename, model, prompt, annotated, description, bytes, sample_rate,
			 duration_ms, elapsed_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Filename, e.Model, e.Prompt, e.Annotated, e.Description, e.Bytes, e.SampleRate,
		e.Duration.Milliseconds(), e.Elapsed.Milliseconds(), e.Error, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("写入合成记录失败: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, filename, model, prompt, annotated, description, bytes,
	sample_rate, duration_ms, elapsed_ms, error, created_at FROM generations`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e                     Entry
		durationMS, elapsedMS int64
		createdAt             int64
	)
	if err := row.Scan(&e.ID, &e.Filename, &e.Model, &e.Prompt, &e.Annotated, &e.Description,
		&e.Bytes, &e.SampleRate, &durationMS, &elapsedMS, &e.Error, &createdAt); err != nil {
		return nil, err
	}
	e.Duration = time.Duration(durationMS) * time.Millisecond
	e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	e.CreatedAt = time.UnixMilli(createdAt)
	return &e, nil
}

// Recent 按时间倒序返回最近 limit 条记录。
func (s *Store) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询合成记录失败: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("读取合成记录失败: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get 按文件名查找记录。
func (s *Store) Get(ctx context.Context, filename string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE filename = ? LIMIT 1`, filename)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询合成记录失败: %w", err)
	}
	return e, nil
}

// Prune 删除早于 before 的记录，返回删除条数。
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM generations WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("清理合成记录失败: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logger.Infof("[history] 已清理 %d 条过期记录", n)
	}
	return n, nil
}
