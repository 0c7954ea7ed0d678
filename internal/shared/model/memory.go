// Package model 定义核心数据模型
//
// memory.go 包含知识库记忆的数据模型定义：
//   - Memory：一条已记录的对话（用户问题 + Agent 回答）
//
// 状态约束：
//   - Processed 只会从 false 变为 true 一次，由存储层原子操作保证
//   - 自动审核只设置 Processed/IsFlagged/FlagReason/FlagConfidence 或直接删除
//   - 人工审核设置 IsApproved/Observations，或在驳回时删除
package model

import (
	"slices"
	"strings"
	"time"
)

// ObservationManuallyApproved 人工审核通过后追加的观察标记
const ObservationManuallyApproved = "MANUALLY_APPROVED_BY_ADMIN"

// ============================================================================
// Memory - 记忆条目
// ============================================================================

// Memory 表示知识库中的一条对话记忆
type Memory struct {
	ID             string    `json:"id" bson:"_id" db:"id"`
	AgentID        string    `json:"agent_id,omitempty" bson:"agent_id,omitempty" db:"agent_id"`
	UserQuery      string    `json:"user_query" bson:"user_query" db:"user_query"`
	AgentResponse  string    `json:"agent_response" bson:"agent_response" db:"agent_response"`
	Rating         *float64  `json:"rating,omitempty" bson:"rating,omitempty" db:"rating"` // 用户评分 0-5，可为空
	Processed      bool      `json:"processed" bson:"processed" db:"processed"`
	IsFlagged      bool      `json:"is_flagged" bson:"is_flagged" db:"is_flagged"`
	FlagReason     string    `json:"flag_reason,omitempty" bson:"flag_reason,omitempty" db:"flag_reason"`
	FlagConfidence float64   `json:"flag_confidence,omitempty" bson:"flag_confidence,omitempty" db:"flag_confidence"`
	IsApproved     bool      `json:"is_approved" bson:"is_approved" db:"is_approved"`
	Observations   []string  `json:"observations,omitempty" bson:"observations,omitempty" db:"observations"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at" db:"created_at"`

	// 审核结论，仅在标记动作成功后由审核器填充，不落库
	IAAuditReason     string  `json:"ia_audit_reason,omitempty" bson:"-" db:"-"`
	IAAuditConfidence float64 `json:"ia_audit_confidence,omitempty" bson:"-" db:"-"`
}

// HasContent 问题和回答是否都非空
func (m *Memory) HasContent() bool {
	return strings.TrimSpace(m.UserQuery) != "" && strings.TrimSpace(m.AgentResponse) != ""
}

// RatedAtLeast 评分存在且不低于阈值
func (m *Memory) RatedAtLeast(threshold float64) bool {
	return m.Rating != nil && *m.Rating >= threshold
}

// HasObservation 是否包含指定观察标记
func (m *Memory) HasObservation(obs string) bool {
	return slices.Contains(m.Observations, obs)
}

// ToAuditRecord 由已标记的记忆生成待审核记录
//
// 问题、回答和审核理由按字符截断到记录上限，记忆已在存储侧标记，
// 超长文本不能让它进不了审核队列
func (m *Memory) ToAuditRecord(now time.Time) *AuditRecord {
	return &AuditRecord{
		MemoryID:          m.ID,
		UserQuery:         truncateRunes(m.UserQuery, MaxUserQueryLen),
		AgentResponse:     truncateRunes(m.AgentResponse, MaxAgentResponseLen),
		IAAuditReason:     truncateRunes(m.IAAuditReason, MaxAuditReasonLen),
		IAAuditConfidence: m.IAAuditConfidence,
		Status:            AuditStatusPending,
		CreatedAt:         now,
	}
}

// truncateRunes 保留前 n 个字符，不切断多字节字符
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
