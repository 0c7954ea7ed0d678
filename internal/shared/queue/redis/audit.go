// Package redis AuditQueue 操作
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"kb-auditor/internal/shared/model"
)

// addScript 三个键空间一次性写入；已存在时返回 0
var addScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[2], ARGV[1]) == 1 then
	return 0
end
redis.call("LPUSH", KEYS[1], ARGV[1])
redis.call("HSET", KEYS[2], ARGV[1], ARGV[2])
redis.call("HSET", KEYS[3], ARGV[1], ARGV[3])
return 1
`)

const maxTxRetries = 5

// AddRecord 新增待审核记录
func (s *Store) AddRecord(ctx context.Context, rec *model.AuditRecord) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}

	cp := *rec
	cp.Status = model.AuditStatusPending
	cp.ReviewedAt = nil
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now().UTC()
	}
	data, err := json.Marshal(&cp)
	if err != nil {
		return false, fmt.Errorf("failed to marshal audit record: %w", err)
	}

	keys := []string{s.keys.Queue, s.keys.Status, s.keys.Data}
	added, err := addScript.Run(ctx, s.client, keys, cp.MemoryID, string(cp.Status), data).Int()
	if err != nil {
		return false, queueErr("add record", cp.MemoryID, err)
	}
	if added == 0 {
		log.Printf("[Redis/Queue] Audit record already exists: memory=%s", cp.MemoryID)
		return false, nil
	}

	log.Printf("[Redis/Queue] Added audit record: memory=%s confidence=%.2f", cp.MemoryID, cp.IAAuditConfidence)
	return true, nil
}

// orderedIDs 按入队顺序（最新在前）返回全部 memory_id
func (s *Store) orderedIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.LRange(ctx, s.keys.Queue, 0, -1).Result()
	if err != nil {
		return nil, queueErr("list queue", "", err)
	}
	return ids, nil
}

// loadRecords 批量读取记录，状态以 status 哈希为准；缺失的数据被跳过
func (s *Store) loadRecords(ctx context.Context, ids []string) ([]*model.AuditRecord, error) {
	if len(ids) == 0 {
		return []*model.AuditRecord{}, nil
	}
	values, err := s.client.HMGet(ctx, s.keys.Data, ids...).Result()
	if err != nil {
		return nil, queueErr("load records", "", err)
	}
	statuses, err := s.client.HMGet(ctx, s.keys.Status, ids...).Result()
	if err != nil {
		return nil, queueErr("load statuses", "", err)
	}

	records := make([]*model.AuditRecord, 0, len(ids))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec model.AuditRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			log.Printf("[Redis/Queue] Skipping corrupt audit record %s: %v", ids[i], err)
			continue
		}
		if st, ok := statuses[i].(string); ok {
			rec.Status = model.AuditStatus(st)
		}
		records = append(records, &rec)
	}
	return records, nil
}

// idsWithStatus 过滤出指定状态的 id，保持列表顺序
func (s *Store) idsWithStatus(ctx context.Context, status model.AuditStatus, limit int) ([]string, error) {
	ids, err := s.orderedIDs(ctx)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	statuses, err := s.client.HMGet(ctx, s.keys.Status, ids...).Result()
	if err != nil {
		return nil, queueErr("load statuses", "", err)
	}

	out := make([]string, 0)
	seen := make(map[string]struct{}, len(ids))
	for i, v := range statuses {
		if st, ok := v.(string); !ok || model.AuditStatus(st) != status {
			continue
		}
		if _, dup := seen[ids[i]]; dup {
			continue
		}
		seen[ids[i]] = struct{}{}
		out = append(out, ids[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// GetPending 返回待审核记录
func (s *Store) GetPending(ctx context.Context, limit int) ([]*model.AuditRecord, error) {
	ids, err := s.idsWithStatus(ctx, model.AuditStatusPending, limit)
	if err != nil {
		return nil, err
	}
	return s.loadRecords(ctx, ids)
}

// GetByStatus 返回指定状态的记录
func (s *Store) GetByStatus(ctx context.Context, status model.AuditStatus) ([]*model.AuditRecord, error) {
	ids, err := s.idsWithStatus(ctx, status, 0)
	if err != nil {
		return nil, err
	}
	return s.loadRecords(ctx, ids)
}

// GetAll 返回全部记录
func (s *Store) GetAll(ctx context.Context) ([]*model.AuditRecord, error) {
	ids, err := s.orderedIDs(ctx)
	if err != nil {
		return nil, err
	}
	return s.loadRecords(ctx, ids)
}

// Get 返回单条记录
func (s *Store) Get(ctx context.Context, memoryID string) (*model.AuditRecord, error) {
	records, err := s.loadRecords(ctx, []string{memoryID})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// UpdateStatus 设置状态和 reviewed_at
func (s *Store) UpdateStatus(ctx context.Context, memoryID string, status model.AuditStatus) (bool, error) {
	return s.updateStatus(ctx, memoryID, status, false)
}

// ResolvePending 仅当当前为 pending 时转换状态
func (s *Store) ResolvePending(ctx context.Context, memoryID string, status model.AuditStatus) (bool, error) {
	return s.updateStatus(ctx, memoryID, status, true)
}

var errNotPending = errors.New("record is not pending")

func (s *Store) updateStatus(ctx context.Context, memoryID string, status model.AuditStatus, requirePending bool) (bool, error) {
	if !status.IsValid() {
		return false, fmt.Errorf("%w: unknown status %q", model.ErrInvalidRecord, status)
	}

	var updated bool
	txf := func(tx *redis.Tx) error {
		updated = false
		raw, err := tx.HGet(ctx, s.keys.Data, memoryID).Result()
		if err == redis.Nil {
			return nil
		}
		if err != nil {
			return err
		}
		if requirePending {
			current, err := tx.HGet(ctx, s.keys.Status, memoryID).Result()
			if err != nil && err != redis.Nil {
				return err
			}
			if model.AuditStatus(current) != model.AuditStatusPending {
				return errNotPending
			}
		}

		var rec model.AuditRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return fmt.Errorf("corrupt audit record: %w", err)
		}
		now := s.now().UTC()
		rec.Status = status
		rec.ReviewedAt = &now
		data, err := json.Marshal(&rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.keys.Status, memoryID, string(status))
			pipe.HSet(ctx, s.keys.Data, memoryID, data)
			return nil
		})
		if err == nil {
			updated = true
		}
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, s.keys.Status, s.keys.Data)
		switch {
		case err == nil:
			if updated {
				log.Printf("[Redis/Queue] Updated audit status: memory=%s status=%s", memoryID, status)
			}
			return updated, nil
		case errors.Is(err, errNotPending):
			return false, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return false, queueErr("update status", memoryID, err)
		}
	}
	return false, queueErr("update status", memoryID, redis.TxFailedErr)
}

// DeleteRecord 从三个键空间中删除记录
func (s *Store) DeleteRecord(ctx context.Context, memoryID string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, s.keys.Queue, 0, memoryID)
		pipe.HDel(ctx, s.keys.Status, memoryID)
		removed = pipe.HDel(ctx, s.keys.Data, memoryID)
		return nil
	})
	if err != nil {
		return false, queueErr("delete record", memoryID, err)
	}
	return removed.Val() > 0, nil
}

// IsApproved 记录是否已被人工通过
func (s *Store) IsApproved(ctx context.Context, memoryID string) (bool, error) {
	st, err := s.client.HGet(ctx, s.keys.Status, memoryID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, queueErr("get status", memoryID, err)
	}
	return model.AuditStatus(st) == model.AuditStatusApproved, nil
}

// GetMetrics 统计各状态数量
func (s *Store) GetMetrics(ctx context.Context) (*model.AuditMetrics, error) {
	statuses, err := s.client.HVals(ctx, s.keys.Status).Result()
	if err != nil {
		return nil, queueErr("metrics", "", err)
	}
	m := &model.AuditMetrics{}
	for _, st := range statuses {
		m.Add(model.AuditStatus(st))
	}
	return m, nil
}

// Len 待审核记录数
func (s *Store) Len(ctx context.Context) (int, error) {
	m, err := s.GetMetrics(ctx)
	if err != nil {
		return 0, err
	}
	return m.Pending, nil
}

// CleanupProcessed 删除过期的已处理记录，配置了归档器时先归档
func (s *Store) CleanupProcessed(ctx context.Context, daysOld int) (int, error) {
	cutoff := s.now().AddDate(0, 0, -daysOld)

	records, err := s.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, rec := range records {
		if !rec.Status.IsResolved() || rec.ReviewedAt == nil || !rec.ReviewedAt.Before(cutoff) {
			continue
		}
		if s.archiver != nil {
			if err := s.archiver.Archive(ctx, rec); err != nil {
				log.Printf("[Redis/Queue] Archive failed, keeping record %s: %v", rec.MemoryID, err)
				continue
			}
		}
		ok, err := s.DeleteRecord(ctx, rec.MemoryID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}

	if removed > 0 {
		log.Printf("[Redis/Queue] Cleaned %d processed audit records older than %s", removed, time.Duration(daysOld)*24*time.Hour)
	}
	return removed, nil
}
