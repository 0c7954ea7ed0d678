// Package storage 定义知识库存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 审核器只依赖接口，不知道具体实现
//   - 具体实现在子包中：repository/（PostgreSQL、SQLite）、mongostore/
//   - 初始化时通过依赖注入传入实现
//
// 比较并交换操作必须在存储层以单条原子语句完成，这是避免重复删除、重复标记的唯一保证；
// 分布式锁只是减少重复的模型调用。
package storage

import (
	"context"

	"kb-auditor/internal/shared/model"
)

// ============================================================================
// 审核器使用的存储接口
// ============================================================================

// KnowledgeStore 审核器需要的原子操作
type KnowledgeStore interface {
	// GetRecentConversations 返回最近的对话，最新在前
	GetRecentConversations(ctx context.Context, limit int) ([]*model.Memory, error)

	// IsAlreadyProcessed 是否已被自动处理；记忆不存在时视为已处理
	IsAlreadyProcessed(ctx context.Context, id string) (bool, error)
	IsFlagged(ctx context.Context, id string) (bool, error)
	IsApproved(ctx context.Context, id string) (bool, error)

	// AtomicCheckAndFlag 仅当 processed=false 时设置标记字段和 processed=true，
	// 只有完成这次转换的调用返回 true
	AtomicCheckAndFlag(ctx context.Context, id, reason string, confidence float64) (bool, error)

	// AtomicCheckAndDelete 仅当 processed=false 时删除记忆，只有完成删除的调用返回 true
	AtomicCheckAndDelete(ctx context.Context, id string) (bool, error)

	// DeleteMemory 人工驳回时删除，记忆不存在时不报错
	DeleteMemory(ctx context.Context, id string) error

	// AddObservations 追加观察标记（去重）；包含人工通过标记时同时设置 is_approved
	AddObservations(ctx context.Context, id string, observations []string) error
}

// ConversationWriter 对话写入接口（聊天后端与测试数据使用）
type ConversationWriter interface {
	AddConversation(ctx context.Context, m *model.Memory) error
	GetMemory(ctx context.Context, id string) (*model.Memory, error)
	SetRating(ctx context.Context, id string, rating float64) error
}

// ============================================================================
// 组合接口
// ============================================================================

// Store 知识库存储组合接口
type Store interface {
	KnowledgeStore
	ConversationWriter
	Close() error
}
