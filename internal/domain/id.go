package domain

import (
	"regexp"
	"strings"
)

// ID 是投稿（submission）的唯一标识，来自数据表的 id 列，同时嵌在输入文件名里（nime2025_<ID>.mp4）。
//
// 约束：ID 只允许文件名安全字符；匹配时大小写不敏感（见 Key）。
type ID string

var idRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ParseID 校验并返回去空白后的 ID。
func ParseID(s string) (ID, bool) {
	s = strings.TrimSpace(s)
	if !idRE.MatchString(s) {
		return "", false
	}
	return ID(s), true
}

// Key 返回用于匹配的规范化形式（小写）。
func (id ID) Key() string { return strings.ToLower(string(id)) }
