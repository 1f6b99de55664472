package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusUnmatched = "unmatched"
)

const (
	ClipStatusPlanned   = "planned"
	ClipStatusProcessed = "processed"
	ClipStatusReused    = "reused"
	ClipStatusMissing   = "missing"
	ClipStatusFailed    = "failed"
	// ClipStatusUnmatched 只出现在 unmatched 合成条目中，不计入 clip_failed。
	ClipStatusUnmatched = "unmatched"
)

const (
	ErrCodeUnmatchedID     = "unmatched_id"
	ErrCodeDuplicateID     = "duplicate_id"
	ErrCodeMissingVideo    = "missing_video"
	ErrCodeProbeFailed     = "probe_failed"
	ErrCodeLoudnessFailed  = "loudness_failed"
	ErrCodeEncodeFailed    = "encode_failed"
	ErrCodeConcatFailed    = "concat_failed"
	ErrCodeNoValidClips    = "no_valid_clips"
	ErrCodeIOFailed        = "io_failed"
	ErrCodeMoveFailed      = "move_failed"
	ErrCodeDataFailed      = "data_failed"
	ErrCodeDataInvalid     = "data_invalid"
	ErrCodeConfigNotFound  = "config_not_found"
	ErrCodeConfigInvalid   = "config_invalid"
	ErrCodeThumbnailFailed = "thumbnail_failed"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id"`
	Root   string `json:"root"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Unmatched int `json:"unmatched"`

	// ClipFailed / ClipMissing 统计 clip 级问题（session 本身可能仍然渲染成功）。
	ClipFailed  int `json:"clip_failed"`
	ClipMissing int `json:"clip_missing"`
}

// ItemResult 对应一个 session（或一个 unmatched 输入文件 / 配置错误等合成条目）。
type ItemResult struct {
	Session string `json:"session"`
	Output  string `json:"output"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	DurationSec float64      `json:"duration_sec"`
	Chapters    int          `json:"chapters"`
	Clips       []ClipResult `json:"clips"`
}

type ClipResult struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Src       string `json:"src"`
	Processed string `json:"processed"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 session 字典序；session=="" 的条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Session
		b := r.Items[j].Session
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusUnmatched:
			s.Unmatched++
		}
		for _, c := range it.Clips {
			switch c.Status {
			case ClipStatusFailed:
				s.ClipFailed++
			case ClipStatusMissing:
				s.ClipMissing++
			}
		}
	}
	r.Summary = s
}

// OK 表示本次运行没有需要用户处理的问题（用于退出码）。
func (r RunReport) OK() bool {
	return r.Summary.Failed == 0 && r.Summary.Unmatched == 0
}

// MarshalJSON 集中约束输出稳定性：nil 切片输出为 []。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	a := Alias(r)
	if a.Items == nil {
		a.Items = []ItemResult{}
	}
	for i := range a.Items {
		if a.Items[i].Clips == nil {
			a.Items[i].Clips = []ClipResult{}
		}
	}
	return json.Marshal(a)
}
