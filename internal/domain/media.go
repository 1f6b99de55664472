package domain

// MediaInfo 是 ffprobe 结果中我们关心的最小子集。
type MediaInfo struct {
	DurationSec float64
	Width       int
	Height      int
	HasVideo    bool
	HasAudio    bool
}

// Loudness 是 loudnorm 第一遍测量的结果（两遍归一化需要把这些值回填给第二遍）。
type Loudness struct {
	InputI       string `json:"input_i"`
	InputTP      string `json:"input_tp"`
	InputLRA     string `json:"input_lra"`
	InputThresh  string `json:"input_thresh"`
	TargetOffset string `json:"target_offset"`

	// Silent 表示输入为静音（input_i = -inf），此时不做增益调整。
	Silent bool `json:"-"`
}
