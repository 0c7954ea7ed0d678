// Package model 定义核心数据模型
//
// audit.go 包含人工审核队列的数据模型定义：
//   - AuditStatus：审核状态枚举
//   - AuditRecord：审核队列条目
//   - AuditMetrics：队列统计
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ============================================================================
// AuditStatus - 审核状态
// ============================================================================

// AuditStatus 审核状态
type AuditStatus string

const (
	// AuditStatusPending 待人工审核
	AuditStatusPending AuditStatus = "pending"

	// AuditStatusApproved 人工确认回答无误
	AuditStatusApproved AuditStatus = "approved"

	// AuditStatusRejected 人工确认回答错误，记忆已删除
	AuditStatusRejected AuditStatus = "rejected"
)

// IsValid 检查状态是否有效
func (s AuditStatus) IsValid() bool {
	switch s {
	case AuditStatusPending, AuditStatusApproved, AuditStatusRejected:
		return true
	}
	return false
}

// IsResolved 是否已完成人工审核
func (s AuditStatus) IsResolved() bool {
	return s == AuditStatusApproved || s == AuditStatusRejected
}

// ============================================================================
// AuditRecord - 审核队列条目
// ============================================================================

// 字段长度上限
const (
	MaxMemoryIDLen      = 255
	MaxUserQueryLen     = 10000
	MaxAgentResponseLen = 50000
	MaxAuditReasonLen   = 1000
)

// ErrInvalidRecord 审核记录字段校验失败
var ErrInvalidRecord = errors.New("invalid audit record")

// AuditRecord 审核队列中的一条记录
//
// 问题与回答是冗余拷贝，记忆被删除后仍可审核
type AuditRecord struct {
	MemoryID          string      `json:"memory_id" db:"memory_id"`
	UserQuery         string      `json:"user_query" db:"user_query"`
	AgentResponse     string      `json:"agent_response" db:"agent_response"`
	IAAuditReason     string      `json:"ia_audit_reason" db:"ia_audit_reason"`
	IAAuditConfidence float64     `json:"ia_audit_confidence" db:"ia_audit_confidence"`
	Status            AuditStatus `json:"status" db:"status"`
	CreatedAt         time.Time   `json:"created_at" db:"created_at"`
	ReviewedAt        *time.Time  `json:"reviewed_at,omitempty" db:"reviewed_at"`
}

// Validate 校验字段长度与取值范围
func (r *AuditRecord) Validate() error {
	if strings.TrimSpace(r.MemoryID) == "" {
		return fmt.Errorf("%w: memory_id is empty", ErrInvalidRecord)
	}
	if len(r.MemoryID) > MaxMemoryIDLen {
		return fmt.Errorf("%w: memory_id exceeds %d characters", ErrInvalidRecord, MaxMemoryIDLen)
	}
	if strings.ContainsRune(r.MemoryID, 0) {
		return fmt.Errorf("%w: memory_id contains NUL byte", ErrInvalidRecord)
	}
	if utf8.RuneCountInString(r.UserQuery) > MaxUserQueryLen {
		return fmt.Errorf("%w: user_query exceeds %d characters", ErrInvalidRecord, MaxUserQueryLen)
	}
	if utf8.RuneCountInString(r.AgentResponse) > MaxAgentResponseLen {
		return fmt.Errorf("%w: agent_response exceeds %d characters", ErrInvalidRecord, MaxAgentResponseLen)
	}
	if utf8.RuneCountInString(r.IAAuditReason) > MaxAuditReasonLen {
		return fmt.Errorf("%w: ia_audit_reason exceeds %d characters", ErrInvalidRecord, MaxAuditReasonLen)
	}
	if r.IAAuditConfidence < 0 || r.IAAuditConfidence > 1 {
		return fmt.Errorf("%w: ia_audit_confidence %v out of [0,1]", ErrInvalidRecord, r.IAAuditConfidence)
	}
	if r.Status != "" && !r.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRecord, r.Status)
	}
	return nil
}

// Matches 问题或回答是否包含关键字（大小写不敏感），空关键字总是匹配
func (r *AuditRecord) Matches(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(r.UserQuery), q) ||
		strings.Contains(strings.ToLower(r.AgentResponse), q)
}

// ============================================================================
// AuditMetrics - 队列统计
// ============================================================================

// AuditMetrics 审核队列各状态计数
type AuditMetrics struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

// Add 按状态累加
func (m *AuditMetrics) Add(status AuditStatus) {
	m.Total++
	switch status {
	case AuditStatusPending:
		m.Pending++
	case AuditStatusApproved:
		m.Approved++
	case AuditStatusRejected:
		m.Rejected++
	}
}
