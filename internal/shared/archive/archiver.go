package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"kb-auditor/internal/shared/model"
	"kb-auditor/internal/shared/queue"
)

// ObjectStore 归档需要的对象存储操作
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Archiver 以 JSON 对象保存审核记录：<prefix>/<status>/<memory_id>.json
type Archiver struct {
	store  ObjectStore
	prefix string
}

// NewArchiver 创建归档器
func NewArchiver(store ObjectStore, prefix string) *Archiver {
	if prefix == "" {
		prefix = "audit"
	}
	return &Archiver{store: store, prefix: prefix}
}

func (a *Archiver) key(status model.AuditStatus, memoryID string) string {
	return path.Join(a.prefix, string(status), memoryID+".json")
}

// Key 返回记录的对象键
func (a *Archiver) Key(rec *model.AuditRecord) string {
	return a.key(rec.Status, rec.MemoryID)
}

// Archive 上传记录
func (a *Archiver) Archive(ctx context.Context, rec *model.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record %s: %w", rec.MemoryID, err)
	}
	return a.store.Put(ctx, a.Key(rec), data, "application/json")
}

// Load 读取已归档的记录
func (a *Archiver) Load(ctx context.Context, status model.AuditStatus, memoryID string) (*model.AuditRecord, error) {
	key := a.key(status, memoryID)
	data, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var rec model.AuditRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &rec, nil
}

var (
	_ queue.Archiver = (*Archiver)(nil)
	_ ObjectStore    = (*Client)(nil)
)
