// Package feishu implements the Feishu (Lark) channel adapter.
package feishu

import "github.com/memohai/lark-enhance/internal/channel"

// Type is the registered channel type identifier for Feishu.
const Type channel.Type = "feishu"
