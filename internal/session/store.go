package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"anemia-detect-go/internal/model"
)

// Entry 存储的会话快照
type Entry struct {
	ID        string         `json:"id"`
	Snapshot  model.Snapshot `json:"snapshot"`
	UpdatedAt time.Time      `json:"updated_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Store 会话存储接口，过期的条目视为不存在
type Store interface {
	Get(ctx context.Context, id string) (*Entry, error)
	Set(ctx context.Context, id string, snap model.Snapshot, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore 内存存储（单机部署默认）
type MemoryStore struct {
	data map[string]*Entry
	mu   sync.RWMutex
	now  func() time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*Entry),
		now:  time.Now,
	}
}

// Get 获取会话
func (s *MemoryStore) Get(ctx context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	entry, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if s.now().After(entry.ExpiresAt) {
		s.mu.Lock()
		// 再次确认，避免删掉并发写入的新条目
		if cur, ok := s.data[id]; ok && cur == entry {
			delete(s.data, id)
		}
		s.mu.Unlock()
		return nil, nil
	}

	out := *entry
	out.Snapshot = entry.Snapshot.Clone()
	return &out, nil
}

// Set 保存会话
func (s *MemoryStore) Set(ctx context.Context, id string, snap model.Snapshot, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.data[id] = &Entry{
		ID:        id,
		Snapshot:  snap.Clone(),
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

// Delete 删除会话
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, id)
	return nil
}

// CleanExpired 清理过期会话
func (s *MemoryStore) CleanExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for id, entry := range s.data {
		if now.After(entry.ExpiresAt) {
			delete(s.data, id)
			n++
		}
	}
	return n, nil
}

// PostgresStore PostgreSQL存储（多实例部署时共享会话）
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore 创建PostgreSQL存储
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewPostgresStoreFromDB(db), nil
}

// NewPostgresStoreFromDB 复用已有连接
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema 建表
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS anemia_sessions (
		id         TEXT PRIMARY KEY,
		snapshot   JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS anemia_sessions_expires_at_idx ON anemia_sessions (expires_at);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Get 获取会话
func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	query := `
	SELECT id, snapshot, updated_at, expires_at
	FROM anemia_sessions
	WHERE id = $1 AND expires_at > NOW()
	`

	var entry Entry
	var snapJSON []byte

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&entry.ID,
		&snapJSON,
		&entry.UpdatedAt,
		&entry.ExpiresAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil // 不存在或已过期
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(snapJSON, &entry.Snapshot); err != nil {
		return nil, err
	}

	return &entry, nil
}

// Set 保存会话
func (s *PostgresStore) Set(ctx context.Context, id string, snap model.Snapshot, ttl time.Duration) error {
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(ttl)

	query := `
	INSERT INTO anemia_sessions (id, snapshot, updated_at, expires_at)
	VALUES ($1, $2, NOW(), $3)
	ON CONFLICT (id)
	DO UPDATE SET snapshot = $2, updated_at = NOW(), expires_at = $3
	`

	_, err = s.db.ExecContext(ctx, query, id, snapJSON, expiresAt)
	return err
}

// Delete 删除会话
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM anemia_sessions WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}

// Close 关闭数据库连接
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// CleanExpired 清理过期会话
func (s *PostgresStore) CleanExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM anemia_sessions WHERE expires_at < NOW()`
	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
