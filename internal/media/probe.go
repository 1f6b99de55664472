package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/John-Robertt/vstitch/internal/domain"
)

// Prober 读取媒体文件的时长与流信息。
type Prober interface {
	Probe(ctx context.Context, path string) (domain.MediaInfo, error)
}

// FFProbe 通过 ffmpeg-go 调用 ffprobe（-show_format -show_streams -of json）。
type FFProbe struct {
	Timeout time.Duration
}

func (p FFProbe) Probe(ctx context.Context, path string) (domain.MediaInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.MediaInfo{}, err
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	out, err := ffmpeg.ProbeWithTimeout(path, timeout, ffmpeg.KwArgs{"v": "error"})
	if err != nil {
		return domain.MediaInfo{}, fmt.Errorf("ffprobe %s：%w", path, err)
	}
	return ParseProbe([]byte(out))
}

type probeJSON struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ParseProbe 解析 ffprobe 的 JSON 输出。
// 时长优先取 format.duration，缺失时取各流时长的最大值。
func ParseProbe(b []byte) (domain.MediaInfo, error) {
	var pj probeJSON
	if err := json.Unmarshal(b, &pj); err != nil {
		return domain.MediaInfo{}, fmt.Errorf("ffprobe 输出无法解析：%w", err)
	}

	var info domain.MediaInfo
	var streamMax float64
	for _, s := range pj.Streams {
		switch s.CodecType {
		case "video":
			if !info.HasVideo {
				info.HasVideo = true
				info.Width = s.Width
				info.Height = s.Height
			}
		case "audio":
			info.HasAudio = true
		}
		if d, ok := parseSeconds(s.Duration); ok && d > streamMax {
			streamMax = d
		}
	}

	if d, ok := parseSeconds(pj.Format.Duration); ok {
		info.DurationSec = d
	} else {
		info.DurationSec = streamMax
	}
	if info.DurationSec <= 0 {
		return info, errors.New("ffprobe 未给出有效时长")
	}
	return info, nil
}

// VideoDimensions 返回第一个视频流的宽高；没有视频流时返回错误。
func VideoDimensions(info domain.MediaInfo) (int, int, error) {
	if !info.HasVideo {
		return 0, 0, errors.New("没有视频流")
	}
	return info.Width, info.Height, nil
}

func parseSeconds(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, false
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
