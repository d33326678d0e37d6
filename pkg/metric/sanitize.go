package metric

import "strings"

// Replacement 非法字符替换字符
const Replacement = '_'

// Sanitize 将外部来源的标识（如 VPN common name）清洗为合法路径段：
// 转小写，仅保留 [a-z0-9_-]，其余字符（包括 "."）替换为 "_"。
// 纯函数，同一输入总是得到同一输出。
func Sanitize(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return string(Replacement)
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune(Replacement)
		}
	}
	return b.String()
}

// SanitizeKey 清洗键值类统计项名称：空格 -> "_"，"/" -> "-"，其余按 Sanitize 处理。
// 例如 "Max bcast/mcast queue length" -> "max_bcast-mcast_queue_length"
func SanitizeKey(raw string) string {
	raw = strings.Join(strings.Fields(raw), " ")
	raw = strings.NewReplacer(" ", "_", "/", "-").Replace(raw)
	return Sanitize(raw)
}
