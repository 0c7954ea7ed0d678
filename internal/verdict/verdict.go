// Package verdict 审核模型调用与结论解析
//
// 模型返回的文本中必须包含一个 JSON 对象，且同时具备 is_incorrect、confidence、reason 三个键。
// 任何解析失败都视为"无结论"，调用方不得据此执行删除或标记。
package verdict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoJSONFound 文本中找不到成对的花括号
	ErrNoJSONFound = errors.New("verdict: no json object found")

	// ErrMalformedJSON JSON 语法错误、字段类型错误或 confidence 超出 [0,1]
	ErrMalformedJSON = errors.New("verdict: malformed json")

	// ErrMissingKeys 缺少必需的键
	ErrMissingKeys = errors.New("verdict: missing required keys")

	// ErrUnavailable 模型调用失败或超时
	ErrUnavailable = errors.New("verdict: model unavailable")
)

// RequiredKeys 结论对象必须包含的键
var RequiredKeys = []string{"is_incorrect", "confidence", "reason"}

// Result 审核结论
type Result struct {
	IsIncorrect bool    `json:"is_incorrect"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

// Parse 从模型输出中提取并校验结论
//
// 取第一个 '{' 到最后一个 '}' 之间的内容解析，不做部分采纳
func Parse(text string) (*Result, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 || end < start {
		return nil, ErrNoJSONFound
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	var missing []string
	for _, k := range RequiredKeys {
		if _, ok := raw[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingKeys, strings.Join(missing, ", "))
	}

	var r Result
	if err := json.Unmarshal(raw["is_incorrect"], &r.IsIncorrect); err != nil {
		return nil, fmt.Errorf("%w: is_incorrect: %v", ErrMalformedJSON, err)
	}
	if err := json.Unmarshal(raw["confidence"], &r.Confidence); err != nil {
		return nil, fmt.Errorf("%w: confidence: %v", ErrMalformedJSON, err)
	}
	if err := json.Unmarshal(raw["reason"], &r.Reason); err != nil {
		return nil, fmt.Errorf("%w: reason: %v", ErrMalformedJSON, err)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence %v out of [0,1]", ErrMalformedJSON, r.Confidence)
	}
	return &r, nil
}

// Kind 返回错误类别，用作指标标签
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoJSONFound):
		return "no_json"
	case errors.Is(err, ErrMalformedJSON):
		return "malformed_json"
	case errors.Is(err, ErrMissingKeys):
		return "missing_keys"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
