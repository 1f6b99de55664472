package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/vstitch/internal/domain"
	"github.com/John-Robertt/vstitch/internal/infra/fsx"
)

// Store 提供 videos/tmp/cache/ 下的探测缓存读写。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - render：允许写（ReadOnly=false）
type Store struct {
	Dir      string // videos/tmp/cache
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

// probeVersion 变化时旧缓存整体失效。
const probeVersion = 1

func New(dir string, readOnly bool) Store {
	return Store{
		Dir:      filepath.Clean(strings.TrimSpace(dir)),
		ReadOnly: readOnly,
	}
}

// ProbeEntry 记录一条输入视频的探测结果，以及它对应的已处理 clip 的指纹。
//
// 源文件字段（SrcSize/SrcModUnixNano）不一致时整条缓存作废；
// 已处理 clip 字段（Processed*）与磁盘上的文件 mtime 不一致时，指纹视为未知。
type ProbeEntry struct {
	Version int `json:"version"`

	SrcSize        int64   `json:"src_size"`
	SrcModUnixNano int64   `json:"src_mod_unix_nano"`
	SrcDurationSec float64 `json:"src_duration_sec"`
	SrcWidth       int     `json:"src_width"`
	SrcHeight      int     `json:"src_height"`
	SrcHasVideo    bool    `json:"src_has_video"`
	SrcHasAudio    bool    `json:"src_has_audio"`

	Fingerprint          string  `json:"fingerprint,omitempty"`
	ProcessedDurationSec float64 `json:"processed_duration_sec,omitempty"`
	ProcessedModUnixNano int64   `json:"processed_mod_unix_nano,omitempty"`
}

// SrcInfo 返回缓存中的源文件探测结果。
func (e ProbeEntry) SrcInfo() domain.MediaInfo {
	return domain.MediaInfo{
		DurationSec: e.SrcDurationSec,
		Width:       e.SrcWidth,
		Height:      e.SrcHeight,
		HasVideo:    e.SrcHasVideo,
		HasAudio:    e.SrcHasAudio,
	}
}

// WithSource 用新的探测结果重建缓存条目；已处理 clip 的字段被清空（源文件变化后它们已失效）。
func WithSource(size int64, mod time.Time, info domain.MediaInfo) ProbeEntry {
	return ProbeEntry{
		Version:        probeVersion,
		SrcSize:        size,
		SrcModUnixNano: mod.UnixNano(),
		SrcDurationSec: info.DurationSec,
		SrcWidth:       info.Width,
		SrcHeight:      info.Height,
		SrcHasVideo:    info.HasVideo,
		SrcHasAudio:    info.HasAudio,
	}
}

// MatchesSource 判断缓存是否对应当前源文件。
func (e ProbeEntry) MatchesSource(size int64, mod time.Time) bool {
	return e.Version == probeVersion && e.SrcSize == size && e.SrcModUnixNano == mod.UnixNano()
}

// MatchesProcessed 判断缓存中的指纹是否对应磁盘上的已处理 clip。
func (e ProbeEntry) MatchesProcessed(mod time.Time) bool {
	return e.Fingerprint != "" && e.ProcessedModUnixNano == mod.UnixNano()
}

// ProbePath 返回 clip 探测缓存的绝对路径。
func (s Store) ProbePath(base string) (string, error) {
	if err := checkBase(base); err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, "probe", base+".json"), nil
}

// ReadProbe 读取缓存；文件不存在或内容损坏都视为未命中（ok=false）。
func (s Store) ReadProbe(base string) (ProbeEntry, bool, error) {
	path, err := s.ProbePath(base)
	if err != nil {
		return ProbeEntry{}, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ProbeEntry{}, false, nil
		}
		return ProbeEntry{}, false, err
	}
	var e ProbeEntry
	if err := json.Unmarshal(b, &e); err != nil || e.Version != probeVersion {
		return ProbeEntry{}, false, nil
	}
	return e, true, nil
}

func (s Store) WriteProbe(base string, e ProbeEntry) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	if err := checkBase(base); err != nil {
		return err
	}
	e.Version = probeVersion
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Join(s.Dir, "probe"), base+".json", append(b, '\n'))
}

func checkBase(base string) error {
	if strings.TrimSpace(base) == "" {
		return fmt.Errorf("base 不能为空")
	}
	// 最小约束：避免路径穿越。
	if strings.ContainsAny(base, `/\`) || base == "." || base == ".." {
		return fmt.Errorf("非法 base：%q", base)
	}
	return nil
}
