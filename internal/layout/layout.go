package layout

import (
	"path/filepath"

	"github.com/John-Robertt/vstitch/internal/infra/fsx"
)

// Paths 固定了工作目录结构：
//
//	<root>/videos/inputs   投稿视频（nime2025_<ID>.mp4）
//	<root>/videos/tmp      中间产物（预处理视频、章节、缓存、日志、report）
//	<root>/videos/output   最终输出（每个 session 一个视频）
//	<root>/data            数据表（data.csv）
type Paths struct {
	Root   string
	Videos string
	Inputs string
	Tmp    string
	Output string
	Data   string
}

func For(root string) Paths {
	root = filepath.Clean(root)
	videos := filepath.Join(root, "videos")
	return Paths{
		Root:   root,
		Videos: videos,
		Inputs: filepath.Join(videos, "inputs"),
		Tmp:    filepath.Join(videos, "tmp"),
		Output: filepath.Join(videos, "output"),
		Data:   filepath.Join(root, "data"),
	}
}

// Ensure 创建全部目录（幂等）。已存在同名文件时返回 *fsx.PathTypeConflictError。
func (p Paths) Ensure() error {
	for _, d := range []string{p.Inputs, p.Tmp, p.Output, p.Data} {
		if err := fsx.EnsureDir(d); err != nil {
			return err
		}
	}
	return nil
}

func (p Paths) CacheDir() string   { return filepath.Join(p.Tmp, "cache") }
func (p Paths) ReportPath() string { return filepath.Join(p.Tmp, "report.json") }
func (p Paths) LogPath() string    { return filepath.Join(p.Tmp, "vstitch.log") }
