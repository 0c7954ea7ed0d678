// Package repository 基于 database/sql 的知识库存储（PostgreSQL / SQLite）
//
// 语句统一按 PostgreSQL 写法编写，执行前经 Dialect.Rebind 改写。
// 标记与删除都是带 processed = FALSE 条件的单条语句，
// 以 RowsAffected 判断本次调用是否赢得了这条记忆。
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"kb-auditor/internal/shared/storage"
	"kb-auditor/internal/shared/storage/dbutil"
)

// Store 知识库 SQL 实现
type Store struct {
	db      *sql.DB
	dialect dbutil.Dialect
}

func NewStore(db *sql.DB, dialect dbutil.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) rebind(query string) string { return s.dialect.Rebind(query) }
func (s *Store) now() string                { return s.dialect.CurrentTimestamp() }
func (s *Store) bool(b bool) string         { return s.dialect.BooleanLiteral(b) }

// wrapError sql.ErrNoRows 映射为 ErrNotFound，主键冲突映射为 ErrDuplicate，
// 其余一律视为存储不可用
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, storage.ErrDuplicate)
	}
	return fmt.Errorf("%w: %s: %w", storage.ErrUnavailable, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ storage.Store = (*Store)(nil)
