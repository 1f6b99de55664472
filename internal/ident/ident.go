package ident

import (
	"sort"
	"strings"

	"github.com/John-Robertt/vstitch/internal/domain"
	"github.com/John-Robertt/vstitch/internal/scan"
)

type UnmatchedError struct {
	Base string
}

func (e *UnmatchedError) Error() string {
	return "无法从文件名解析出 ID：" + e.Base
}

// Extract 从文件名（不含扩展名）中提取 ID：去掉前缀（大小写不敏感）后剩余部分即 ID。
// 文件名不带前缀时整个文件名作为 ID。
// 若提取失败，返回 *UnmatchedError。
func Extract(v domain.Clip, prefix string) (domain.ID, error) {
	s := strings.TrimSpace(v.Base)
	if prefix != "" && len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		s = s[len(prefix):]
	}
	id, ok := domain.ParseID(s)
	if !ok {
		return "", &UnmatchedError{Base: v.Base}
	}
	return id, nil
}

// Resolve 为每个文件提取 ID，并按 ID 去重。
//
// 同一 ID（大小写不敏感）存在多个文件时，按扩展名优先级（见 scan.VideoExts）选出一个，
// 优先级相同再按 RelPath 字典序；其余文件作为 duplicate 返回。
// 返回的 clips 按 RelPath 排序且已填好 ID。
func Resolve(files []domain.Clip, prefix string) (clips []domain.Clip, unmatched []domain.Unmatched) {
	byKey := map[string][]domain.Clip{}
	for _, f := range files {
		id, err := Extract(f, prefix)
		if err != nil {
			unmatched = append(unmatched, domain.Unmatched{File: f, Kind: domain.UnmatchedNoID})
			continue
		}
		f.ID = id
		byKey[id.Key()] = append(byKey[id.Key()], f)
	}

	for _, group := range byKey {
		sort.Slice(group, func(i, j int) bool {
			ri, rj := scan.ExtRank(group[i].Ext), scan.ExtRank(group[j].Ext)
			if ri != rj {
				return ri < rj
			}
			return group[i].RelPath < group[j].RelPath
		})
		clips = append(clips, group[0])
		for _, d := range group[1:] {
			unmatched = append(unmatched, domain.Unmatched{
				File:   d,
				Kind:   domain.UnmatchedDuplicate,
				Winner: group[0].RelPath,
			})
		}
	}

	sort.Slice(clips, func(i, j int) bool { return clips[i].RelPath < clips[j].RelPath })
	sort.Slice(unmatched, func(i, j int) bool { return unmatched[i].File.RelPath < unmatched[j].File.RelPath })
	return clips, unmatched
}
