package planner

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/vstitch/internal/domain"
	"github.com/John-Robertt/vstitch/internal/ffmeta"
	"github.com/John-Robertt/vstitch/internal/infra/cache"
	"github.com/John-Robertt/vstitch/internal/infra/fsx"
)

// Options 是规划需要的全部输入（来自 EffectiveConfig）。
type Options struct {
	Tmp    string
	Output string

	OutputExt        string
	TitleWithAuthors bool
	Thumbnail        bool

	Render domain.RenderSettings
}

// fingerprintVersion 变化时所有已处理 clip 失效（例如滤镜链调整）。
const fingerprintVersion = "v1"

// Fingerprint 计算已处理 clip 的指纹：标题文字 + 输出规格。
func Fingerprint(title string, rs domain.RenderSettings) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%dx%d@%d\n%s/%d\nI=%g LRA=%g TP=%g\n",
		fingerprintVersion, title,
		rs.Width, rs.Height, rs.FPS,
		rs.Font, rs.FontSize,
		rs.LoudnessI, rs.LoudnessLRA, rs.LoudnessTP,
	)
	return hex.EncodeToString(h.Sum(nil))
}

// ProcessedPath 返回 clip 预处理结果的路径：videos/tmp/<base>-processed<ext>。
func ProcessedPath(opts Options, base string) string {
	return filepath.Join(opts.Tmp, base+"-processed"+opts.OutputExt)
}

// ClipState 是规划一个 clip 所需的磁盘现状（已处理文件 + 探测缓存）。
type ClipState struct {
	Processed    bool
	ProcessedMod time.Time

	Entry    cache.ProbeEntry
	HasEntry bool
}

// ReadClipState 读取 clip 的现状（只做 stat 与缓存读取，不读视频内容）。
func ReadClipState(store cache.Store, processedAbs, base string) (ClipState, error) {
	var st ClipState
	mod, ok, err := fsx.ModTime(processedAbs)
	if err != nil {
		return ClipState{}, err
	}
	st.Processed, st.ProcessedMod = ok, mod

	e, ok, err := store.ReadProbe(base)
	if err != nil {
		return ClipState{}, err
	}
	st.Entry, st.HasEntry = e, ok
	return st, nil
}

// PlanClip 基于投稿 + clip + 现状生成确定性的 clip 计划（不做任何写入/探测）。
// clip 为 nil 表示该投稿没有找到视频。
func PlanClip(opts Options, sub domain.Submission, clip *domain.Clip, st ClipState) domain.ClipPlan {
	title := sub.TitleText(opts.TitleWithAuthors)
	p := domain.ClipPlan{
		ID:          sub.ID,
		Title:       title,
		Fingerprint: Fingerprint(title, opts.Render),
	}
	if clip == nil {
		p.Missing = true
		p.ErrorCode = domain.ErrCodeMissingVideo
		p.ErrorMsg = "inputs 中没有找到 ID=" + string(sub.ID) + " 的视频"
		return p
	}

	p.SrcAbs = clip.AbsPath
	p.SrcBase = clip.Base
	p.SrcSize = clip.Size
	p.SrcModTime = clip.ModTime
	p.ProcessedAbs = ProcessedPath(opts, clip.Base)

	srcOK := st.HasEntry && st.Entry.MatchesSource(clip.Size, clip.ModTime)
	if srcOK {
		p.SrcInfo = st.Entry.SrcInfo()
	}

	// 复用已处理 clip 的条件：文件存在、不旧于源文件、缓存记录的指纹对应这个文件且与当前一致。
	reuse := st.Processed &&
		!st.ProcessedMod.Before(clip.ModTime) &&
		srcOK &&
		st.Entry.MatchesProcessed(st.ProcessedMod) &&
		st.Entry.Fingerprint == p.Fingerprint
	p.NeedProcess = !reuse
	if reuse {
		p.DurationSec = st.Entry.ProcessedDurationSec
		p.ProcessedModTime = st.ProcessedMod
	}
	return p
}

// SessionState 是 session 输出的磁盘现状。
type SessionState struct {
	Output    bool
	OutputMod time.Time

	Metadata    []byte
	HasMetadata bool
}

// ReadSessionState 读取输出视频的 mtime 与上次写入的章节文件。
func ReadSessionState(outputAbs, metadataAbs string) (SessionState, error) {
	var st SessionState
	mod, ok, err := fsx.ModTime(outputAbs)
	if err != nil {
		return SessionState{}, err
	}
	st.Output, st.OutputMod = ok, mod

	b, err := os.ReadFile(metadataAbs)
	if err != nil {
		if !os.IsNotExist(err) {
			return SessionState{}, err
		}
	} else {
		st.Metadata, st.HasMetadata = b, true
	}
	return st, nil
}

// SessionPaths 填充 session 的输出路径（不含 clip）。
func SessionPaths(opts Options, item domain.SessionItem) domain.SessionPlan {
	p := domain.SessionPlan{
		Session:      item.Session,
		Name:         item.Name,
		OutputAbs:    filepath.Join(opts.Output, item.Name+opts.OutputExt),
		TmpOutputAbs: filepath.Join(opts.Tmp, item.Name+opts.OutputExt),
		MetadataAbs:  filepath.Join(opts.Tmp, item.Name+"-metadata.ini"),
	}
	if opts.Thumbnail {
		p.ThumbAbs = filepath.Join(opts.Output, item.Name+".jpg")
	}
	return p
}

// PlanSession 判断 session 是否需要重新拼接。
//
// 需要拼接的条件（任一）：
// - 输出不存在
// - 任一可用 clip 需要预处理
// - 输出比任一已处理 clip 旧
// - 章节内容与上次写入的章节文件不同（clip 增减、标题或时长变化）
func PlanSession(p domain.SessionPlan, st SessionState) domain.SessionPlan {
	p.NeedRender = needRender(p, st)
	return p
}

func needRender(p domain.SessionPlan, st SessionState) bool {
	if p.Ready() == 0 {
		return false
	}
	if !st.Output {
		return true
	}
	for _, c := range p.Clips {
		if !c.Usable() {
			continue
		}
		if c.NeedProcess {
			return true
		}
		if st.OutputMod.Before(c.ProcessedModTime) {
			return true
		}
	}
	if !st.HasMetadata {
		return true
	}
	return !bytes.Equal(st.Metadata, Metadata(p))
}

// Chapters 返回可用 clip 的章节列表（顺序即拼接顺序）。
func Chapters(p domain.SessionPlan) []ffmeta.Chapter {
	out := make([]ffmeta.Chapter, 0, len(p.Clips))
	for _, c := range p.Clips {
		if !c.Usable() {
			continue
		}
		out = append(out, ffmeta.Chapter{Title: c.Title, DurationSec: c.DurationSec})
	}
	return out
}

// Metadata 返回 session 的 FFMETADATA1 章节文件内容。
func Metadata(p domain.SessionPlan) []byte {
	return ffmeta.Encode(p.Name, Chapters(p))
}

// Describe 给日志用的一行摘要。
func Describe(p domain.SessionPlan) string {
	var need []string
	for _, c := range p.Clips {
		if c.Usable() && c.NeedProcess {
			need = append(need, string(c.ID))
		}
	}
	return fmt.Sprintf("%s：%d/%d 可用，待处理 [%s]，render=%v", p.Name, p.Ready(), len(p.Clips), strings.Join(need, " "), p.NeedRender)
}
