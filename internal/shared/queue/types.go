// Package queue 审核队列键定义
package queue

import "strings"

// DefaultPrefix 默认命名空间
const DefaultPrefix = "resync"

// Keys 审核队列使用的三个键空间
type Keys struct {
	Queue  string // 有序列表：memory_id，最新在表头
	Status string // 哈希：memory_id → status
	Data   string // 哈希：memory_id → JSON 记录
}

// NewKeys 按命名空间生成键名
func NewKeys(prefix string) Keys {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Keys{
		Queue:  prefix + ":audit_queue",
		Status: prefix + ":audit_status",
		Data:   prefix + ":audit_data",
	}
}
