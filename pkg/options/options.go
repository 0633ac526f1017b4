// Package options 定义各配置分组共用的接口与工具函数。
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// Join 用 "." 拼接前缀，非空时追加结尾的 "."。
// 用于构造 "rag.top-k" 或 "prefix.rag.top-k" 这样的标志名。
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}

// IOptions 每个配置分组都要实现的接口。
type IOptions interface {
	// Validate 校验配置，返回全部错误而不是第一个。
	Validate() []error

	// AddFlags 将配置项注册到 flagset，prefixes 用于嵌套命名。
	AddFlags(fs *pflag.FlagSet, prefixes ...string)

	// Complete 填充缺省值和派生值。
	Complete() error
}
