package util

// LastN 取字符串末尾 n 个字符（按 rune），不足 n 个时返回原串
func LastN(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
