// Package knowledge 实现脚本化应答：把配置中的快捷意图、模糊意图和固定优先级的正则规则
// 组织成一张有序规则表，由同一个匹配函数按顺序求值，先命中者胜出。
package knowledge

import (
	"strings"
	"unicode"
)

// Normalize 统一大小写并去掉标点和符号，再压缩空白。
// 规则表里的触发词与用户消息都经过同一处理，匹配因此是对称的。
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			continue
		case unicode.IsSpace(r):
			space = b.Len() > 0
		default:
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
