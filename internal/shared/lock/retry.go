package lock

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	initialBackoff = 25 * time.Millisecond
	maxBackoff     = 250 * time.Millisecond
)

// TryFunc 尝试一次获取锁，返回是否成功
type TryFunc func(ctx context.Context) (bool, error)

// Retry 按有界退避重试 try，直到成功、超过 timeout 或 ctx 取消
//
// 后端错误立即返回 ErrLockBackend，不再重试
func Retry(ctx context.Context, key string, timeout time.Duration, try TryFunc) error {
	deadline := time.Now().Add(timeout)
	backoff := initialBackoff

	for {
		ok, err := try(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %s: %w", ErrLockBackend, key, err)
		}
		if ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: %s after %s", ErrLockTimeout, key, timeout)
		}
		wait := min(backoff, remaining)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

// EncodeValue 把令牌和获取时间编码为锁值
func EncodeValue(token string, acquiredAt time.Time) string {
	return token + "|" + strconv.FormatInt(acquiredAt.UnixMilli(), 10)
}

// DecodeValue 解析锁值
func DecodeValue(v string) (token string, acquiredAt time.Time, ok bool) {
	token, ms, found := strings.Cut(v, "|")
	if !found {
		return v, time.Time{}, false
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return token, time.Time{}, false
	}
	return token, time.UnixMilli(n), true
}
