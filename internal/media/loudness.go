package media

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/John-Robertt/vstitch/internal/domain"
)

const loudnormMarker = "[Parsed_loudnorm_0"

// silentLevel 代替 -inf；loudnorm 的 measured_* 参数不接受无穷值。
const silentLevel = "-99"

// ParseLoudness 从 ffmpeg stderr 中提取 loudnorm（print_format=json）的测量结果。
//
// 规则：
// - JSON 位于 "[Parsed_loudnorm_0" 标记行之后的第一个 {...} 块
// - input_i 截断到 <= 0
// - input_i 为 -inf 表示静音：measured I/TP/thresh 取 -99，offset 取 0，不做增益调整
func ParseLoudness(stderr []byte) (domain.Loudness, error) {
	s := string(stderr)
	i := strings.Index(s, loudnormMarker)
	if i < 0 {
		return domain.Loudness{}, errors.New("ffmpeg 输出中没有 loudnorm 结果")
	}
	s = s[i:]
	start := strings.Index(s, "{")
	if start < 0 {
		return domain.Loudness{}, errors.New("loudnorm 结果不是 JSON")
	}
	end := strings.Index(s[start:], "}")
	if end < 0 {
		return domain.Loudness{}, errors.New("loudnorm 结果 JSON 不完整")
	}

	var l domain.Loudness
	if err := json.Unmarshal([]byte(s[start:start+end+1]), &l); err != nil {
		return domain.Loudness{}, fmt.Errorf("loudnorm 结果无法解析：%w", err)
	}

	in, err := strconv.ParseFloat(strings.TrimSpace(l.InputI), 64)
	if err != nil {
		return domain.Loudness{}, fmt.Errorf("input_i 无法解析：%q", l.InputI)
	}
	if math.IsInf(in, -1) {
		l.Silent = true
		l.InputI = silentLevel
		l.InputTP = silentLevel
		l.TargetOffset = "0"
		if t, err := strconv.ParseFloat(l.InputThresh, 64); err != nil || math.IsInf(t, 0) {
			l.InputThresh = silentLevel
		}
		return l, nil
	}
	if in > 0 {
		l.InputI = "0"
	}
	for _, v := range []string{l.InputTP, l.InputLRA, l.InputThresh, l.TargetOffset} {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return domain.Loudness{}, fmt.Errorf("loudnorm 测量值无效：%q", v)
		}
	}
	return l, nil
}
