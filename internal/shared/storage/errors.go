package storage

import "errors"

var (
	// ErrNotFound 记忆不存在
	ErrNotFound = errors.New("memory not found")

	// ErrDuplicate 写入已存在的记忆 ID
	ErrDuplicate = errors.New("memory already exists")

	// ErrUnavailable 存储后端不可达或语句执行失败，调用方按 StoreUnavailable 处理
	ErrUnavailable = errors.New("knowledge store unavailable")
)
