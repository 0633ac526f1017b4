// Package textutil 提供文档问答流水线使用的文本处理工具函数。
package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kart-io/docqa/pkg/utils/json"
)

var (
	codeFenceRegex = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	jsonArrayRegex = regexp.MustCompile(`\[[\s\S]*\]`)
)

// HashString 计算字符串的 SHA-256 十六进制摘要。
func HashString(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

// TruncateString 截断字符串到指定的最大 Unicode 字符数。
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}

// StripCodeFence 去掉模型输出外层的 Markdown 代码块标记。
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := codeFenceRegex.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// ParseStringArray 将模型输出解析为字符串数组。
//
// 接受三种形态：纯 JSON 数组、被代码块包裹的数组、以及包含一个字符串数组字段的 JSON 对象。
// 数组元素必须全部是字符串。
func ParseStringArray(s string) ([]string, error) {
	body := StripCodeFence(s)
	if body == "" {
		return nil, fmt.Errorf("empty output")
	}

	var direct []string
	if err := json.Unmarshal([]byte(body), &direct); err == nil {
		return direct, nil
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err == nil {
		for _, v := range obj {
			if arr, ok := toStringSlice(v); ok {
				return arr, nil
			}
		}
		return nil, fmt.Errorf("object contains no string array")
	}

	match := jsonArrayRegex.FindString(body)
	if match == "" {
		return nil, fmt.Errorf("no JSON array found")
	}
	var extracted []string
	if err := json.Unmarshal([]byte(match), &extracted); err != nil {
		return nil, err
	}
	return extracted, nil
}

func toStringSlice(v any) ([]string, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
