package auditor

import "kb-auditor/internal/verdict"

// Action 审核动作
type Action string

const (
	ActionNone   Action = "none"
	ActionDelete Action = "delete"
	ActionFlag   Action = "flag"
)

// Decide 根据结论决定动作
//
// 两个阈值都是严格大于：confidence 恰好等于阈值时不会升级
func Decide(r *verdict.Result, deleteThreshold, flagThreshold float64) Action {
	if r == nil || !r.IsIncorrect {
		return ActionNone
	}
	switch {
	case r.Confidence > deleteThreshold:
		return ActionDelete
	case r.Confidence > flagThreshold:
		return ActionFlag
	default:
		return ActionNone
	}
}
