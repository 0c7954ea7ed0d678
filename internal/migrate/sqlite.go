// Package migrate 把旧版 SQLite 审核表迁移到审核队列
//
// 旧表结构：audit_queue(memory_id, user_query, agent_response, ia_audit_reason,
// ia_audit_confidence, status, created_at, reviewed_at)。迁移可重复执行，已存在的记录会被跳过。
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"kb-auditor/internal/shared/model"
	"kb-auditor/internal/shared/queue"
	"kb-auditor/pkg/logging"
)

// Report 迁移统计
type Report struct {
	Total    int `json:"total"`
	Migrated int `json:"migrated"`
	Skipped  int `json:"skipped"`
	Invalid  int `json:"invalid"`
}

const selectLegacy = `
SELECT memory_id, user_query, agent_response,
       COALESCE(ia_audit_reason, ''), COALESCE(ia_audit_confidence, 0),
       COALESCE(status, 'pending'),
       CAST(created_at AS TEXT), CAST(reviewed_at AS TEXT)
FROM audit_queue
ORDER BY id`

// MigrateFile 以只读方式打开旧库并迁移；文件不存在时直接返回空统计
func MigrateFile(ctx context.Context, path string, q queue.AuditQueue, logger *logging.Logger) (*Report, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Info("no legacy sqlite audit database, skipping", "path", path)
		return &Report{}, nil
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	defer db.Close()

	return Migrate(ctx, db, q, logger)
}

// Migrate 逐行写入审核队列，保留状态与创建时间
//
// 非 pending 的记录在写入后转为原状态，reviewed_at 为迁移时刻
func Migrate(ctx context.Context, db *sql.DB, q queue.AuditQueue, logger *logging.Logger) (*Report, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	rows, err := db.QueryContext(ctx, selectLegacy)
	if err != nil {
		return nil, fmt.Errorf("query legacy audit_queue: %w", err)
	}
	defer rows.Close()

	rep := &Report{}
	for rows.Next() {
		var (
			rec                 model.AuditRecord
			status              string
			createdAt, reviewed sql.NullString
		)
		if err := rows.Scan(&rec.MemoryID, &rec.UserQuery, &rec.AgentResponse,
			&rec.IAAuditReason, &rec.IAAuditConfidence, &status, &createdAt, &reviewed); err != nil {
			return rep, fmt.Errorf("scan legacy row: %w", err)
		}
		rep.Total++
		rec.CreatedAt = parseTimestamp(createdAt.String)
		log := logger.WithMemoryID(rec.MemoryID)

		st := model.AuditStatus(strings.ToLower(status))
		if !st.IsValid() {
			rep.Invalid++
			log.Warn("legacy record has unknown status, skipped", "status", status)
			continue
		}

		added, err := q.AddRecord(ctx, &rec)
		if errors.Is(err, model.ErrInvalidRecord) {
			rep.Invalid++
			log.WithError(err).Warn("legacy record failed validation, skipped")
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("add %s: %w", rec.MemoryID, err)
		}
		if !added {
			rep.Skipped++
			continue
		}

		if st != model.AuditStatusPending {
			if _, err := q.UpdateStatus(ctx, rec.MemoryID, st); err != nil {
				return rep, fmt.Errorf("restore status of %s: %w", rec.MemoryID, err)
			}
		}
		rep.Migrated++
	}
	if err := rows.Err(); err != nil {
		return rep, fmt.Errorf("iterate legacy rows: %w", err)
	}

	logger.Info("legacy audit queue migrated",
		"total", rep.Total, "migrated", rep.Migrated, "skipped", rep.Skipped, "invalid", rep.Invalid)
	return rep, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// parseTimestamp 解析 SQLite 文本时间（按 UTC），无法解析时返回零值由队列补当前时间
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}
