package domain

import "time"

// Clip 描述一次扫描得到的输入视频（只做 stat，不读内容）。
//
// 不变量（实现必须遵守）：
// - AbsPath 必须是 clean + absolute
// - ID 为空表示文件名无法解析出 ID（见 Unmatched）
type Clip struct {
	AbsPath string
	RelPath string
	Base    string // filename without ext
	Ext     string // ".mp4"（小写）
	Size    int64
	ModTime time.Time

	ID ID
}
