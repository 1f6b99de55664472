package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/John-Robertt/vstitch/internal/domain"
)

// UnassignedSession 是 session 列为空的投稿所归入的输出名片段。
const UnassignedSession = "unassigned"

// GroupBySession 把投稿按 session 聚合为 SessionItem，并把已解析 ID 的视频挂到对应投稿上。
//
// - items 稳定排序：按 Session 字典序
// - item 内 Entries 保持 subs 的原始顺序（即数据表顺序）
// - 找不到视频的投稿 ClipIdx = -1
// - orphans 返回没有对应投稿的 clip 下标（按 RelPath 顺序）
func GroupBySession(subs []domain.Submission, clips []domain.Clip, outputPrefix string) (items []domain.SessionItem, orphans []int) {
	clipByKey := make(map[string]int, len(clips))
	for i := range clips {
		clipByKey[clips[i].ID.Key()] = i
	}

	index := make(map[string]int, 16)
	used := make(map[int]struct{}, len(clips))
	for _, s := range subs {
		ci := -1
		if i, ok := clipByKey[s.ID.Key()]; ok {
			ci = i
			used[i] = struct{}{}
		}

		idx, ok := index[s.Session]
		if !ok {
			idx = len(items)
			index[s.Session] = idx
			items = append(items, domain.SessionItem{Session: s.Session})
		}
		items[idx].Entries = append(items[idx].Entries, domain.Entry{Submission: s, ClipIdx: ci})
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Session < items[j].Session })

	// 不同 session 清洗后可能撞名：按排序后的顺序依次追加 _2、_3，直到名字未被占用。
	// 追加后缀得到的名字也要登记，否则会与恰好同名的后续 session 冲突。
	taken := make(map[string]struct{}, len(items))
	for i := range items {
		base := outputPrefix + SanitizeName(items[i].Session)
		name := base
		for n := 2; ; n++ {
			if _, ok := taken[strings.ToLower(name)]; !ok {
				break
			}
			name = fmt.Sprintf("%s_%d", base, n)
		}
		taken[strings.ToLower(name)] = struct{}{}
		items[i].Name = name
	}

	for i := range clips {
		if _, ok := used[i]; !ok {
			orphans = append(orphans, i)
		}
	}
	return items, orphans
}

// SanitizeName 把 session 名转为文件名安全的片段：
// 只保留字母、数字、'.'、'-'、'_'，其余字符替换为 '_'；空串返回 UnassignedSession。
func SanitizeName(s string) string {
	s = strings.TrimSpace(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return UnassignedSession
	}
	return out
}
