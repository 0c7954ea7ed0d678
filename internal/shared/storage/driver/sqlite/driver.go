// Package sqlite 知识库的 SQLite 后端（modernc.org/sqlite，无 cgo）
//
// 用于开发环境、单机部署和测试。
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"kb-auditor/internal/shared/storage/dbutil"

	_ "modernc.org/sqlite"
)

// Dialect SQLite 方言实现
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType { return dbutil.DriverSQLite }

func (d *Dialect) Rebind(query string) string {
	return dbutil.StripCasts(dbutil.QuestionPlaceholders(query))
}

func (d *Dialect) CurrentTimestamp() string { return "datetime('now')" }

func (d *Dialect) BooleanLiteral(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (d *Dialect) LockRow() string { return "" }

func (d *Dialect) AutoMigrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// busy_timeout 让并发 CAS 在写锁上排队而不是立刻 SQLITE_BUSY
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
}

// Open 打开知识库，dsn 形如 "file:knowledge.db?cache=shared&mode=rwc" 或 ":memory:"
func Open(dsn string) (*sql.DB, error) {
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open knowledge db (sqlite): %w", err)
	}
	// :memory: 每个连接是独立的库
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", p, err)
		}
	}
	return db, nil
}

func NewDialect() *Dialect { return &Dialect{} }

// 字段与 PostgreSQL 版本一一对应
const schema = `
CREATE TABLE IF NOT EXISTS memories (
    id VARCHAR(255) PRIMARY KEY,
    agent_id VARCHAR(64) NOT NULL DEFAULT '',
    user_query TEXT NOT NULL DEFAULT '',
    agent_response TEXT NOT NULL DEFAULT '',
    rating REAL,
    processed BOOLEAN NOT NULL DEFAULT 0,
    is_flagged BOOLEAN NOT NULL DEFAULT 0,
    flag_reason TEXT NOT NULL DEFAULT '',
    flag_confidence REAL NOT NULL DEFAULT 0,
    is_approved BOOLEAN NOT NULL DEFAULT 0,
    observations TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_processed ON memories(processed);
`
