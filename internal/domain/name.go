package domain

import (
	"regexp"
	"strings"
)

// Name 是条目的符号标识（例如 CIRCLE_MIDDLE），也是输出文件名的主干。
//
// 约束：Name 只能落在输出目录内；不允许路径分隔符与前导 '.'（避免穿越与隐藏文件）。
type Name string

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]*$`)

// ParseName 校验并解析标识字符串（首尾空白会被去掉）。
func ParseName(s string) (Name, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 200 {
		return "", false
	}
	if !nameRE.MatchString(s) {
		return "", false
	}
	return Name(s), true
}
