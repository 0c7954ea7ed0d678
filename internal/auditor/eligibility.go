package auditor

import (
	"context"
	"fmt"

	"kb-auditor/internal/shared/model"
)

// SkipReason 记忆被跳过的原因
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipAlreadyProcessed SkipReason = "already_processed"
	SkipHighRating       SkipReason = "high_rating"
	SkipMissingContent   SkipReason = "missing_content"
	SkipApproved         SkipReason = "approved"
	SkipFlagged          SkipReason = "flagged"
	SkipLockFailed       SkipReason = "lock_failed"
	SkipStoreError       SkipReason = "store_error"
	SkipInvalidRecord    SkipReason = "invalid_record"
)

// ValidateForAnalysis 资格检查，按顺序短路：
// 已处理 → 高评分 → 内容缺失 → 人工已通过
//
// 返回 SkipNone 表示可以分析
func (a *Auditor) ValidateForAnalysis(ctx context.Context, m *model.Memory) (SkipReason, error) {
	processed, err := a.store.IsAlreadyProcessed(ctx, m.ID)
	if err != nil {
		return SkipStoreError, fmt.Errorf("check processed: %w", err)
	}
	if processed {
		return SkipAlreadyProcessed, nil
	}

	if m.RatedAtLeast(a.cfg.HighRating) {
		return SkipHighRating, nil
	}

	if !m.HasContent() {
		return SkipMissingContent, nil
	}

	approved, err := a.store.IsApproved(ctx, m.ID)
	if err != nil {
		return SkipStoreError, fmt.Errorf("check approved: %w", err)
	}
	if approved {
		return SkipApproved, nil
	}
	return SkipNone, nil
}
