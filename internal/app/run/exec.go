package run

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/John-Robertt/vstitch/internal/app/planner"
	"github.com/John-Robertt/vstitch/internal/config"
	"github.com/John-Robertt/vstitch/internal/domain"
	"github.com/John-Robertt/vstitch/internal/infra/cache"
	"github.com/John-Robertt/vstitch/internal/infra/fsx"
	"github.com/John-Robertt/vstitch/internal/infra/imgx"
	"github.com/John-Robertt/vstitch/internal/media"
)

// ThumbnailWidth 是输出缩略图的最大宽度。
const ThumbnailWidth = 640

type executor struct {
	eff   config.EffectiveConfig
	store cache.Store
	ff    media.FFmpeg
	probe media.Prober
	log   *zap.Logger
}

// execOne 处理一个 session：预处理 clip -> 写章节 -> 拼接到 tmp -> 落位 -> 缩略图。
// 顺序是硬约束：输出视频只在拼接成功后才会被替换。
func (ex executor) execOne(ctx context.Context, p domain.SessionPlan) domain.ItemResult {
	root := ex.eff.Paths.Root
	item := domain.ItemResult{
		Session: p.Session,
		Output:  relTo(root, p.OutputAbs),
		Status:  domain.StatusProcessed, // 失败时覆盖
		Clips:   make([]domain.ClipResult, len(p.Clips)),
	}
	for i, c := range p.Clips {
		item.Clips[i] = clipResult(root, c)
	}
	log := ex.log.With(zap.String("session", p.Name))

	if p.Ready() == 0 {
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeNoValidClips
		item.ErrorMsg = fmt.Sprintf("session %q 没有可用的视频", p.Session)
		return item
	}

	needThumb := p.ThumbAbs != "" && !fileExists(p.ThumbAbs)

	if !p.NeedRender {
		item.Status = domain.StatusSkipped
		fillSummary(&item, p)
		if needThumb && !ex.eff.DryRun {
			if err := ex.thumbnail(ctx, p); err != nil {
				log.Warn("生成缩略图失败", zap.Error(err))
				item.ErrorCode = domain.ErrCodeThumbnailFailed
				item.ErrorMsg = err.Error()
			} else {
				item.Status = domain.StatusProcessed
			}
		}
		return item
	}

	// dry-run：只报告计划，不调用 ffmpeg、不写任何文件。章节时长用源文件时长估算。
	if ex.eff.DryRun {
		for i := range p.Clips {
			if p.Clips[i].Usable() && p.Clips[i].NeedProcess {
				p.Clips[i].DurationSec = p.Clips[i].SrcInfo.DurationSec
			}
		}
		fillSummary(&item, p)
		return item
	}

	for i := range p.Clips {
		c := &p.Clips[i]
		if !c.Usable() || !c.NeedProcess {
			continue
		}
		if err := ctx.Err(); err != nil {
			c.ErrorCode, c.ErrorMsg = domain.ErrCodeEncodeFailed, err.Error()
		} else {
			ex.processClip(ctx, c)
		}
		item.Clips[i] = clipResult(root, *c)
		if c.ErrorCode == "" {
			item.Clips[i].Status = domain.ClipStatusProcessed
		} else {
			log.Warn("clip 处理失败，已从 session 中移除", zap.String("id", string(c.ID)), zap.String("error_code", c.ErrorCode), zap.String("error", c.ErrorMsg))
		}
	}

	if p.Ready() == 0 {
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeNoValidClips
		item.ErrorMsg = fmt.Sprintf("session %q 的视频全部处理失败", p.Session)
		return item
	}

	fail := func(code string, err error) domain.ItemResult {
		item.Status = domain.StatusFailed
		item.ErrorCode = code
		item.ErrorMsg = err.Error()
		// 章节文件是“上次成功渲染”的记录；渲染失败时删掉，避免下次误判为已是最新。
		_ = os.Remove(p.MetadataAbs)
		return item
	}

	metaDir, metaName := filepath.Split(p.MetadataAbs)
	if err := fsx.WriteFileAtomic(metaDir, metaName, planner.Metadata(p)); err != nil {
		return fail(domain.ErrCodeIOFailed, fmt.Errorf("写入章节文件失败：%w", err))
	}

	inputs := make([]string, 0, len(p.Clips))
	for _, c := range p.Clips {
		if c.Usable() {
			inputs = append(inputs, c.ProcessedAbs)
		}
	}
	if err := ex.ff.Concat(ctx, inputs, p.MetadataAbs, p.TmpOutputAbs); err != nil {
		_ = os.Remove(p.TmpOutputAbs)
		return fail(domain.ErrCodeConcatFailed, err)
	}
	if err := fsx.MoveIntoPlace(p.TmpOutputAbs, p.OutputAbs); err != nil {
		if fsx.IsCrossDevice(err) {
			log.Error("videos/tmp 与 videos/output 不在同一文件系统",
				zap.String("tmp", ex.eff.Paths.Tmp), zap.String("output", ex.eff.Paths.Output))
		}
		_ = os.Remove(p.TmpOutputAbs)
		return fail(domain.ErrCodeMoveFailed, err)
	}
	log.Info("已生成", zap.String("output", p.OutputAbs), zap.Int("chapters", len(inputs)))

	fillSummary(&item, p)

	if p.ThumbAbs != "" {
		if err := ex.thumbnail(ctx, p); err != nil {
			// 视频已经落位：缩略图失败不回滚，只记录。
			log.Warn("生成缩略图失败", zap.Error(err))
			item.ErrorCode = domain.ErrCodeThumbnailFailed
			item.ErrorMsg = err.Error()
		}
	}
	return item
}

// processClip 预处理一个 clip，并把结果（时长、mtime、指纹）写回探测缓存。
// 失败时只设置 c.ErrorCode/c.ErrorMsg。
func (ex executor) processClip(ctx context.Context, c *domain.ClipPlan) {
	if err := ex.ff.Process(ctx, c.SrcAbs, c.ProcessedAbs, c.Title, c.SrcInfo, ex.eff.Render); err != nil {
		c.ErrorCode = domain.ErrCodeEncodeFailed
		if media.Stage(err) == media.StageLoudness {
			c.ErrorCode = domain.ErrCodeLoudnessFailed
		}
		c.ErrorMsg = err.Error()
		return
	}

	info, err := ex.probe.Probe(ctx, c.ProcessedAbs)
	if err != nil {
		c.ErrorCode = domain.ErrCodeProbeFailed
		c.ErrorMsg = fmt.Sprintf("探测已处理视频失败：%v", err)
		return
	}
	mod, ok, err := fsx.ModTime(c.ProcessedAbs)
	if err != nil || !ok {
		c.ErrorCode = domain.ErrCodeIOFailed
		c.ErrorMsg = fmt.Sprintf("读取已处理视频失败：%v", err)
		return
	}
	c.DurationSec = info.DurationSec
	c.ProcessedModTime = mod
	c.NeedProcess = false

	e := cache.WithSource(c.SrcSize, c.SrcModTime, c.SrcInfo)
	e.Fingerprint = c.Fingerprint
	e.ProcessedDurationSec = info.DurationSec
	e.ProcessedModUnixNano = mod.UnixNano()
	if err := ex.store.WriteProbe(c.SrcBase, e); err != nil {
		ex.log.Warn("写入探测缓存失败", zap.String("file", c.SrcAbs), zap.Error(err))
	}
}

func (ex executor) thumbnail(ctx context.Context, p domain.SessionPlan) error {
	frame, err := ex.ff.Thumbnail(ctx, p.OutputAbs)
	if err != nil {
		return err
	}
	b, err := imgx.ThumbnailJPEG(frame, ThumbnailWidth)
	if err != nil {
		return fmt.Errorf("生成缩略图失败：%w", err)
	}
	dir, name := filepath.Split(p.ThumbAbs)
	return fsx.WriteFileAtomic(dir, name, b)
}

func clipResult(root string, c domain.ClipPlan) domain.ClipResult {
	r := domain.ClipResult{
		ID:        string(c.ID),
		Title:     c.Title,
		Src:       relTo(root, c.SrcAbs),
		Processed: relTo(root, c.ProcessedAbs),
		ErrorCode: c.ErrorCode,
		ErrorMsg:  c.ErrorMsg,
	}
	switch {
	case c.Missing:
		r.Status = domain.ClipStatusMissing
	case c.ErrorCode != "":
		r.Status = domain.ClipStatusFailed
	case c.NeedProcess:
		r.Status = domain.ClipStatusPlanned
	default:
		r.Status = domain.ClipStatusReused
	}
	return r
}

func fillSummary(item *domain.ItemResult, p domain.SessionPlan) {
	chapters := planner.Chapters(p)
	item.Chapters = len(chapters)
	item.DurationSec = 0
	for _, ch := range chapters {
		item.DurationSec += ch.DurationSec
	}
}

func fileExists(path string) bool {
	_, ok, err := fsx.ModTime(path)
	return err == nil && ok
}
