// Package postgres 知识库的 PostgreSQL 后端（pgx stdlib 驱动）
package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"kb-auditor/internal/shared/storage/dbutil"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Dialect PostgreSQL 方言实现
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType { return dbutil.DriverPostgres }

// Rebind PostgreSQL 原生支持 $N
func (d *Dialect) Rebind(query string) string { return query }

func (d *Dialect) CurrentTimestamp() string { return "NOW()" }

func (d *Dialect) BooleanLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (d *Dialect) LockRow() string { return " FOR UPDATE" }

func (d *Dialect) AutoMigrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// 审核批次并发上限默认 10，每个分析占用一个连接做 CAS
const (
	maxOpenConns    = 20
	maxIdleConns    = 10
	connMaxLifetime = 10 * time.Minute
)

// Open 打开知识库连接并确认可达
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open knowledge db (postgres): %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping knowledge db (postgres): %w", err)
	}
	return db, nil
}

func NewDialect() *Dialect { return &Dialect{} }

const schema = `
CREATE TABLE IF NOT EXISTS memories (
    id VARCHAR(255) PRIMARY KEY,
    agent_id VARCHAR(64) NOT NULL DEFAULT '',
    user_query TEXT NOT NULL DEFAULT '',
    agent_response TEXT NOT NULL DEFAULT '',
    rating DOUBLE PRECISION,
    processed BOOLEAN NOT NULL DEFAULT FALSE,
    is_flagged BOOLEAN NOT NULL DEFAULT FALSE,
    flag_reason TEXT NOT NULL DEFAULT '',
    flag_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
    is_approved BOOLEAN NOT NULL DEFAULT FALSE,
    observations TEXT NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_processed ON memories(processed) WHERE processed = FALSE;
`
