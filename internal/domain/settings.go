package domain

// RenderSettings 是预处理每条视频时的统一输出规格。
// 这些值参与 clip 指纹计算：任何变化都会让已处理的 clip 失效。
type RenderSettings struct {
	Width    int
	Height   int
	FPS      int
	Font     string
	FontSize int

	// EBU R128 目标值
	LoudnessI   float64
	LoudnessLRA float64
	LoudnessTP  float64
}

// DefaultRenderSettings 是 1080p/30fps、-23 LUFS 的默认规格。
func DefaultRenderSettings() RenderSettings {
	return RenderSettings{
		Width:       1920,
		Height:      1080,
		FPS:         30,
		Font:        "Roboto",
		FontSize:    60,
		LoudnessI:   -23,
		LoudnessLRA: 7,
		LoudnessTP:  -2,
	}
}
