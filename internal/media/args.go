package media

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/John-Robertt/vstitch/internal/domain"
)

// 所有 ffmpeg 调用共享的前缀：不读 stdin、不打印进度。
var commonArgs = []string{"-hide_banner", "-nostdin", "-nostats"}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\\\'`,
	`:`, `\:`,
	`,`, `\,`,
)

// EscapeText 转义 drawtext 的 text 参数（filtergraph 两层转义）。
func EscapeText(s string) string {
	return textEscaper.Replace(s)
}

// LoudnessArgs 构造 loudnorm 第一遍测量的参数（结果以 JSON 打印到 stderr）。
func LoudnessArgs(in string, rs domain.RenderSettings) []string {
	args := append([]string{}, commonArgs...)
	return append(args,
		"-i", in,
		"-vn",
		"-af", loudnormBase(rs)+":print_format=json",
		"-f", "null", "-",
	)
}

// ProcessArgs 构造单条投稿的重编码参数：统一分辨率/帧率、白色留边、底部标题栏、两遍响度归一化。
//
// hasAudio=false 时用 anullsrc 补一条静音音轨，保证拼接时每个输入都有 [i:a]。
func ProcessArgs(in, out, title string, rs domain.RenderSettings, loud domain.Loudness, hasAudio bool) []string {
	args := append([]string{}, commonArgs...)
	args = append(args, "-i", in)
	if !hasAudio {
		args = append(args, "-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=48000")
	}
	args = append(args,
		// 规避 "Too many packets buffered for output stream"
		"-max_muxing_queue_size", "99999",
		"-filter_complex", "[0:v]"+VideoFilter(title, rs)+"[v]",
		"-map", "[v]",
	)
	if hasAudio {
		args = append(args, "-map", "0:a:0", "-af", loudnormSecondPass(rs, loud))
	} else {
		args = append(args, "-map", "1:a:0", "-shortest")
	}
	return append(args, "-ar", "48000", "-ac", "2", "-y", out)
}

// VideoFilter 返回视频滤镜链（不含输入/输出标签）。
func VideoFilter(title string, rs domain.RenderSettings) string {
	w, h, f := rs.Width, rs.Height, rs.FontSize
	parts := []string{
		fmt.Sprintf("fps=%d", rs.FPS),
		fmt.Sprintf(`scale=min(iw*%d/ih\,%d):min(%d\,ih*%d/iw)`, h, w, h, w),
		fmt.Sprintf("pad=%d:%d:(%d-iw)/2:(%d-ih)/2:color=white", w, h, w, h),
		"setsar=sar=1/1",
		fmt.Sprintf("drawbox=y=ih-%d:color=black@0.3:width=iw:height=%d:t=fill", 2*f, 2*f),
		fmt.Sprintf("drawtext=text=%s:x=%d:y=H-%d-th/2:font=%s:fontsize=%d:fontcolor=white", EscapeText(title), f, f, EscapeText(rs.Font), f),
	}
	return strings.Join(parts, ",")
}

// ConcatArgs 构造拼接参数：n 个已处理 clip + 1 个 FFMETADATA 章节文件（作为第 n 个输入）。
func ConcatArgs(inputs []string, metadata, out string) []string {
	n := len(inputs)
	args := append([]string{}, commonArgs...)
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args, "-i", metadata)

	var filter strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&filter, "[%d:v] [%d:a] ", i, i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=1 [v] [a]", n)

	idx := strconv.Itoa(n)
	return append(args,
		"-map_metadata", idx,
		"-map_chapters", idx,
		"-filter_complex", filter.String(),
		"-map", "[v]",
		"-map", "[a]",
		"-y", out,
	)
}

// ThumbnailArgs 构造截帧参数：第 1 秒的一帧，以 PNG 写到 stdout。
func ThumbnailArgs(in string) []string {
	args := append([]string{}, commonArgs...)
	return append(args,
		"-ss", "1",
		"-i", in,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
}

func loudnormBase(rs domain.RenderSettings) string {
	return fmt.Sprintf("loudnorm=I=%s:LRA=%s:tp=%s", ff(rs.LoudnessI), ff(rs.LoudnessLRA), ff(rs.LoudnessTP))
}

func loudnormSecondPass(rs domain.RenderSettings, l domain.Loudness) string {
	return fmt.Sprintf("%s:measured_I=%s:measured_LRA=%s:measured_tp=%s:measured_thresh=%s:offset=%s",
		loudnormBase(rs), l.InputI, l.InputLRA, l.InputTP, l.InputThresh, l.TargetOffset)
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
