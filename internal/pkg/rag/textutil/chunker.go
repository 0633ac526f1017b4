package textutil

import (
	"strings"

	"github.com/kart-io/docqa/pkg/errors"
)

// LineSeparator 拼接过滤后行时使用的分隔符。
const LineSeparator = "\n"

// FilterLines 按行分割文本，丢弃空行与纯空白行，其余行保持原样。
func FilterLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// JoinLines 将行拼接为一个连续的文本流。
func JoinLines(lines []string) string {
	return strings.Join(lines, LineSeparator)
}

// ValidateChunking 校验分块参数。
// overlap >= size 时窗口无法前进，返回配置错误。
func ValidateChunking(size, overlap int) error {
	switch {
	case size <= 0:
		return errors.ErrInvalidChunking.WithMessagef("chunk size must be positive, got %d", size)
	case overlap < 0:
		return errors.ErrInvalidChunking.WithMessagef("overlap must not be negative, got %d", overlap)
	case overlap >= size:
		return errors.ErrInvalidChunking.WithMessagef("overlap %d must be smaller than chunk size %d", overlap, size)
	}
	return nil
}

// Chunk 将行序列拼接后按滑动窗口切分。
//
// 窗口长度为 size 个 Unicode 字符，每次前进 size-overlap 个字符，最后一块可以短于 size。
// 对相同输入和参数，结果完全确定。
func Chunk(lines []string, size, overlap int) ([]string, error) {
	if err := ValidateChunking(size, overlap); err != nil {
		return nil, err
	}

	var filtered []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			filtered = append(filtered, line)
		}
	}

	runes := []rune(JoinLines(filtered))
	if len(runes) == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]string, 0, len(runes)/step+1)
	for start := 0; ; start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}

// SplitDocument 对原始文档文本执行过滤与分块。
func SplitDocument(text string, size, overlap int) ([]string, error) {
	return Chunk(FilterLines(text), size, overlap)
}

// Reassemble 去掉相邻块之间的重叠部分并还原文本流，是 Chunk 的逆操作。
func Reassemble(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		runes := []rune(c)
		if overlap < len(runes) {
			b.WriteString(string(runes[overlap:]))
		}
	}
	return b.String()
}
