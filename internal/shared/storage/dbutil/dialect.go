// Package dbutil 知识库 SQL 方言
//
// repository 中的语句统一按 PostgreSQL 写法编写（$N 占位符、::type 转换），
// 由 Dialect 在执行前改写为目标数据库能接受的形式。
package dbutil

import (
	"database/sql"
	"regexp"
)

// DriverType 数据库驱动类型
type DriverType string

const (
	DriverPostgres DriverType = "postgres"
	DriverSQLite   DriverType = "sqlite"
)

// Dialect 知识库存储需要的方言差异
type Dialect interface {
	DriverType() DriverType

	// Rebind 把 $N 占位符改写为目标数据库的格式
	Rebind(query string) string

	CurrentTimestamp() string
	BooleanLiteral(b bool) string

	// LockRow 追加在 SELECT 末尾的行锁子句；SQLite 写事务本身串行，返回空串
	LockRow() string

	// AutoMigrate 建 memories 表（幂等）
	AutoMigrate(db *sql.DB) error
}

var (
	placeholderRe = regexp.MustCompile(`\$\d+`)
	castRe        = regexp.MustCompile(`::\w+`)
)

// QuestionPlaceholders $1..$N 改写为 ?，要求占位符按顺序出现且不重复引用
func QuestionPlaceholders(query string) string {
	return placeholderRe.ReplaceAllString(query, "?")
}

// StripCasts 去掉 ::type 类型转换
func StripCasts(query string) string {
	return castRe.ReplaceAllString(query, "")
}
