package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"kb-auditor/internal/shared/model"
	"kb-auditor/internal/shared/storage"
)

const memoryColumns = `id, agent_id, user_query, agent_response, rating, processed, is_flagged,
	flag_reason, flag_confidence, is_approved, observations, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (*model.Memory, error) {
	var (
		m            model.Memory
		rating       sql.NullFloat64
		observations string
	)
	err := row.Scan(&m.ID, &m.AgentID, &m.UserQuery, &m.AgentResponse, &rating, &m.Processed, &m.IsFlagged,
		&m.FlagReason, &m.FlagConfidence, &m.IsApproved, &observations, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if rating.Valid {
		m.Rating = &rating.Float64
	}
	if observations != "" {
		if err := json.Unmarshal([]byte(observations), &m.Observations); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func encodeObservations(obs []string) (string, error) {
	if obs == nil {
		obs = []string{}
	}
	b, err := json.Marshal(obs)
	return string(b), err
}

// AddConversation 写入一条对话
func (s *Store) AddConversation(ctx context.Context, m *model.Memory) error {
	obs, err := encodeObservations(m.Observations)
	if err != nil {
		return err
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := s.rebind(`INSERT INTO memories (` + memoryColumns + `, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, ` + s.now() + `)`)
	_, err = s.db.ExecContext(ctx, query, m.ID, m.AgentID, m.UserQuery, m.AgentResponse, m.Rating,
		m.Processed, m.IsFlagged, m.FlagReason, m.FlagConfidence, m.IsApproved, obs, createdAt.UTC())
	return wrapError("add conversation", err)
}

// GetMemory 按 ID 读取记忆，不存在时返回 storage.ErrNotFound
func (s *Store) GetMemory(ctx context.Context, id string) (*model.Memory, error) {
	query := s.rebind(`SELECT ` + memoryColumns + ` FROM memories WHERE id = $1`)
	m, err := scanMemory(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrapError("get memory", err)
	}
	return m, nil
}

// SetRating 设置用户评分
func (s *Store) SetRating(ctx context.Context, id string, rating float64) error {
	query := s.rebind(`UPDATE memories SET rating = $1, updated_at = ` + s.now() + ` WHERE id = $2`)
	res, err := s.db.ExecContext(ctx, query, rating, id)
	if err != nil {
		return wrapError("set rating", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetRecentConversations 返回最近的对话，最新在前
func (s *Store) GetRecentConversations(ctx context.Context, limit int) ([]*model.Memory, error) {
	query := s.rebind(`SELECT ` + memoryColumns + ` FROM memories ORDER BY created_at DESC, id DESC LIMIT $1`)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, wrapError("get recent conversations", err)
	}
	defer rows.Close()

	memories := make([]*model.Memory, 0, limit)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, wrapError("scan memory", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("get recent conversations", err)
	}
	return memories, nil
}

// queryFlag 读取单个布尔列；记忆不存在时返回 missing
func (s *Store) queryFlag(ctx context.Context, column, id string, missing bool) (bool, error) {
	var v bool
	query := s.rebind(`SELECT ` + column + ` FROM memories WHERE id = $1`)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return missing, nil
	}
	if err != nil {
		return false, wrapError("query "+column, err)
	}
	return v, nil
}

// IsAlreadyProcessed 记忆不存在时视为已处理
func (s *Store) IsAlreadyProcessed(ctx context.Context, id string) (bool, error) {
	return s.queryFlag(ctx, "processed", id, true)
}

func (s *Store) IsFlagged(ctx context.Context, id string) (bool, error) {
	return s.queryFlag(ctx, "is_flagged", id, false)
}

func (s *Store) IsApproved(ctx context.Context, id string) (bool, error) {
	return s.queryFlag(ctx, "is_approved", id, false)
}

// AtomicCheckAndFlag 单条 UPDATE 完成检查与标记
func (s *Store) AtomicCheckAndFlag(ctx context.Context, id, reason string, confidence float64) (bool, error) {
	query := s.rebind(`UPDATE memories
		SET is_flagged = ` + s.bool(true) + `, flag_reason = $1, flag_confidence = $2,
			processed = ` + s.bool(true) + `, updated_at = ` + s.now() + `
		WHERE id = $3 AND processed = ` + s.bool(false))
	res, err := s.db.ExecContext(ctx, query, reason, confidence, id)
	if err != nil {
		return false, wrapError("check and flag", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapError("check and flag", err)
	}
	return n == 1, nil
}

// AtomicCheckAndDelete 单条 DELETE 完成检查与删除
func (s *Store) AtomicCheckAndDelete(ctx context.Context, id string) (bool, error) {
	query := s.rebind(`DELETE FROM memories WHERE id = $1 AND processed = ` + s.bool(false))
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, wrapError("check and delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrapError("check and delete", err)
	}
	return n == 1, nil
}

// DeleteMemory 无条件删除
func (s *Store) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM memories WHERE id = $1`), id)
	return wrapError("delete memory", err)
}

// AddObservations 在事务内合并观察标记
func (s *Store) AddObservations(ctx context.Context, id string, observations []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapError("begin", err)
	}
	defer tx.Rollback()

	sel := `SELECT observations FROM memories WHERE id = $1` + s.dialect.LockRow()
	var raw string
	err = tx.QueryRowContext(ctx, s.rebind(sel), id).Scan(&raw)
	if err != nil {
		return wrapError("load observations", err)
	}
	var existing []string
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &existing); err != nil {
			return err
		}
	}

	merged := storage.MergeObservations(existing, observations)
	encoded, err := encodeObservations(merged)
	if err != nil {
		return err
	}

	approved := slices.Contains(merged, model.ObservationManuallyApproved)

	query := `UPDATE memories SET observations = $1, updated_at = ` + s.now()
	if approved {
		query += `, is_approved = ` + s.bool(true)
	}
	query += ` WHERE id = $2`
	if _, err := tx.ExecContext(ctx, s.rebind(query), encoded, id); err != nil {
		return wrapError("update observations", err)
	}
	return wrapError("commit", tx.Commit())
}
