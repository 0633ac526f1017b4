package biz

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/docqa/pkg/errors"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    map[string]string
		wantErr bool
	}{
		{
			name:   "纯数组",
			output: `["what is x", "define x", "x meaning"]`,
			want:   map[string]string{"translation_0": "what is x", "translation_1": "define x", "translation_2": "x meaning"},
		},
		{
			name:   "代码块包裹",
			output: "```json\n[\"a\", \"b\", \"c\"]\n```",
			want:   map[string]string{"translation_0": "a", "translation_1": "b", "translation_2": "c"},
		},
		{
			name:   "对象包裹",
			output: `{"queries": ["a", "b", "c"]}`,
			want:   map[string]string{"translation_0": "a", "translation_1": "b", "translation_2": "c"},
		},
		{
			name:   "多于期望数量时截断",
			output: `["a", "b", "c", "d"]`,
			want:   map[string]string{"translation_0": "a", "translation_1": "b", "translation_2": "c"},
		},
		{
			name:   "跳过空字符串",
			output: `["a", "  ", "b"]`,
			want:   map[string]string{"translation_0": "a", "translation_1": "b"},
		},
		{name: "纯文本", output: "1. a\n2. b", wantErr: true},
		{name: "空数组", output: `[]`, wantErr: true},
		{name: "非字符串元素", output: `[1, 2, 3]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &mockChat{expansion: tt.output}
			e := NewExpander(chat, &ExpanderConfig{Count: 3}, nil)

			got, err := e.Expand(context.Background(), "what is x?")
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrExpansionMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandProviderError(t *testing.T) {
	chat := &mockChat{err: stderrors.New("timeout")}
	e := NewExpander(chat, nil, nil)

	_, err := e.Expand(context.Background(), "q")
	assert.ErrorIs(t, err, errors.ErrCompletionUnavailable)
	assert.True(t, errors.IsRetryable(err))
}

func TestOrderedExpansions(t *testing.T) {
	assert.Len(t, OrderedExpansions(nil), 0)

	got := OrderedExpansions(map[string]string{
		"translation_10": "k",
		"translation_2":  "c",
		"translation_0":  "a",
		"translation_1":  "b",
		"translation_3":  "d",
		"translation_4":  "e",
		"translation_5":  "f",
		"translation_6":  "g",
		"translation_7":  "h",
		"translation_8":  "i",
		"translation_9":  "j",
	})
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}, got)
}
