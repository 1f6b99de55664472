package domain

import "time"

// ClipPlan 规划一条投稿视频的预处理（重编码 + 标题 + 响度归一化）。
type ClipPlan struct {
	ID    ID
	Title string // 叠加到画面上的文字（未转义）

	SrcAbs       string
	SrcBase      string
	SrcSize      int64
	SrcModTime   time.Time
	ProcessedAbs string

	// Missing 表示数据表中有这条投稿，但 inputs 里找不到视频。
	Missing bool

	NeedProcess bool
	Fingerprint string

	// SrcInfo 来自探测（缓存命中或 ffprobe）。
	SrcInfo MediaInfo
	// DurationSec 是已处理 clip 的时长（章节用）；NeedProcess 时在执行阶段回填。
	DurationSec      float64
	ProcessedModTime time.Time

	// ErrorCode 非空表示规划阶段已确定该 clip 不可用（例如探测失败）。
	ErrorCode string
	ErrorMsg  string
}

// Usable 表示该 clip 可以参与拼接。
func (c ClipPlan) Usable() bool { return !c.Missing && c.ErrorCode == "" }

// SessionPlan 是对某个 session 的最小执行计划。
type SessionPlan struct {
	Session string
	Name    string

	OutputAbs    string
	TmpOutputAbs string
	MetadataAbs  string
	ThumbAbs     string // 为空表示不生成缩略图

	Clips []ClipPlan

	NeedRender bool
}

// Ready 返回可以参与拼接的 clip 数量。
func (p SessionPlan) Ready() int {
	n := 0
	for _, c := range p.Clips {
		if c.Usable() {
			n++
		}
	}
	return n
}
