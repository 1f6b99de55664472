package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/vstitch/internal/domain"
)

// VideoExts 是可接受的输入扩展名；顺序即同一 ID 多个文件时的优先级。
var VideoExts = []string{".mp4", ".mkv", ".mov", ".flv", ".m4v", ".wmv"}

// ExtRank 返回扩展名优先级（越小越优先）；不支持的扩展名返回 -1。
func ExtRank(ext string) int {
	ext = strings.ToLower(ext)
	for i, e := range VideoExts {
		if e == ext {
			return i
		}
	}
	return -1
}

// ScanVideos 递归扫描 inputs 目录下的视频文件。
//
// 规则（硬约束）：
// - 以 "." 开头的文件与目录一律跳过（包括我们自己写出的 .partial 临时文件）
// - 只做 stat（DirEntry.Info），不读文件内容
// - 输出按 RelPath 排序
func ScanVideos(inputs string) ([]domain.Clip, error) {
	inputs = filepath.Clean(inputs)

	files := make([]domain.Clip, 0, 128)
	err := filepath.WalkDir(inputs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		name := d.Name()
		if path != inputs && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(name))
		if ExtRank(ext) < 0 {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		// 只接受普通文件（符号链接等交给 ffmpeg 会带来不可预期的行为）。
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(inputs, path)
		if err != nil {
			return err
		}

		files = append(files, domain.Clip{
			AbsPath: path,
			RelPath: rel,
			Base:    strings.TrimSuffix(name, filepath.Ext(name)),
			Ext:     ext,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}
