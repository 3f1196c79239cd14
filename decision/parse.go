package decision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	reJSONFence      = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)\\s*```")
	reDecisionTag    = regexp.MustCompile(`(?s)<decision>(.*?)</decision>`)
	reInvisibleRunes = regexp.MustCompile("[\u200B\u200C\u200D\uFEFF]")
)

// RawTrade 未经校验的字段表。数字以 json.Number 保存。
type RawTrade map[string]any

// ParseResult 解析结果：ParsedTrade 或 ParseFailure，调用方必须处理两种情况
type ParseResult interface {
	isParseResult()
}

// ParsedTrade 结构上可用的提案（必需数值字段存在且合法）
type ParsedTrade struct {
	Fields RawTrade
}

// ParseFailure 无法使用的提案
type ParseFailure struct {
	Reason FallbackReason
	Detail string
}

func (ParsedTrade) isParseResult()  {}
func (ParseFailure) isParseResult() {}

func (f ParseFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Reason, f.Detail)
}

// ParseProposal 从模型输出中提取单个交易提案
func ParseProposal(text string) ParseResult {
	payload, ok := extractJSON(text)
	if !ok {
		return ParseFailure{Reason: ReasonMalformed, Detail: "no JSON object found"}
	}

	var v any
	if err := decodeJSON(payload, &v); err != nil {
		return ParseFailure{Reason: ReasonMalformed, Detail: err.Error()}
	}

	// 模型有时把单个对象包在数组里
	if arr, ok := v.([]any); ok {
		if len(arr) == 0 {
			return ParseFailure{Reason: ReasonMissingFields, Detail: "empty array"}
		}
		v = arr[0]
	}
	return checkProposal(v)
}

// ParseProposalList 提取提案数组，每个元素单独判定。整体无法解析时返回单个 ParseFailure。
func ParseProposalList(text string) []ParseResult {
	payload, ok := extractJSON(text)
	if !ok {
		return []ParseResult{ParseFailure{Reason: ReasonMalformed, Detail: "no JSON found"}}
	}

	var v any
	if err := decodeJSON(payload, &v); err != nil {
		return []ParseResult{ParseFailure{Reason: ReasonMalformed, Detail: err.Error()}}
	}

	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		// {"variations": [...]} 或单个对象
		if inner, ok := firstArray(t, "variations", "ideas", "signals", "trades"); ok {
			items = inner
		} else {
			items = []any{t}
		}
	default:
		return []ParseResult{ParseFailure{Reason: ReasonMalformed, Detail: "expected an array of objects"}}
	}

	out := make([]ParseResult, 0, len(items))
	for _, item := range items {
		out = append(out, checkProposal(item))
	}
	return out
}

func firstArray(m map[string]any, keys ...string) ([]any, bool) {
	for _, k := range keys {
		if arr, ok := m[k].([]any); ok {
			return arr, true
		}
	}
	return nil, false
}

func checkProposal(v any) ParseResult {
	obj, ok := v.(map[string]any)
	if !ok {
		return ParseFailure{Reason: ReasonMalformed, Detail: "proposal is not an object"}
	}
	raw := RawTrade(obj)
	for _, field := range requiredFields {
		if _, ok := parsePrice(raw.lookup(field.key, field.aliases)); !ok {
			return ParseFailure{Reason: ReasonMissingFields, Detail: fmt.Sprintf("%s missing or not a positive number", field.key)}
		}
	}
	return ParsedTrade{Fields: raw}
}

// lookup 按主键和别名查找字段值
func (r RawTrade) lookup(key string, aliases []string) any {
	if v, ok := r[key]; ok && v != nil {
		return v
	}
	for _, a := range aliases {
		if v, ok := r[a]; ok && v != nil {
			return v
		}
	}
	return nil
}

func decodeJSON(payload string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("JSON解析失败: %w", err)
	}
	return nil
}

// extractJSON 依次尝试 <decision> 标签、```json 代码块、首个完整的 {...} 或 [...]
func extractJSON(response string) (string, bool) {
	s := strings.TrimSpace(fixFullWidth(removeInvisibleRunes(response)))
	if s == "" {
		return "", false
	}

	if m := reDecisionTag.FindStringSubmatch(s); len(m) > 1 {
		s = strings.TrimSpace(m[1])
	}
	if m := reJSONFence.FindStringSubmatch(s); len(m) > 1 {
		s = strings.TrimSpace(m[1])
	}
	return firstBalanced(s)
}

// firstBalanced 返回第一个括号配平的 JSON 对象或数组，忽略字符串内的括号
func firstBalanced(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// removeInvisibleRunes 去除零宽字符和 BOM
func removeInvisibleRunes(s string) string {
	return reInvisibleRunes.ReplaceAllString(s, "")
}

var fullWidthReplacer = strings.NewReplacer(
	"“", "\"", "”", "\"",
	"［", "[", "］", "]",
	"｛", "{", "｝", "}",
	"：", ":", "，", ",",
	"　", " ",
)

// fixFullWidth 替换中文引号和全角标点，避免模型输出全角 JSON 字符导致解析失败
func fixFullWidth(s string) string {
	return fullWidthReplacer.Replace(s)
}
