package run

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/vstitch/internal/app/planner"
	"github.com/John-Robertt/vstitch/internal/config"
	"github.com/John-Robertt/vstitch/internal/domain"
	"github.com/John-Robertt/vstitch/internal/infra/cache"
	"github.com/John-Robertt/vstitch/internal/media"
)

// sessionPlanner 把 SessionItem 变成 SessionPlan：读取磁盘现状、补齐缺失的探测结果。
type sessionPlanner struct {
	eff    config.EffectiveConfig
	store  cache.Store
	prober media.Prober
	log    *zap.Logger
}

func plannerOptions(eff config.EffectiveConfig) planner.Options {
	return planner.Options{
		Tmp:              eff.Paths.Tmp,
		Output:           eff.Paths.Output,
		OutputExt:        eff.OutputExt,
		TitleWithAuthors: eff.TitleWithAuthors,
		Thumbnail:        eff.Thumbnail,
		Render:           eff.Render,
	}
}

type probeJob struct {
	session int
	clip    int
}

func (sp sessionPlanner) plan(ctx context.Context, items []domain.SessionItem, clips []domain.Clip) ([]domain.SessionPlan, error) {
	opts := plannerOptions(sp.eff)

	plans := make([]domain.SessionPlan, 0, len(items))
	var jobs []probeJob
	for _, it := range items {
		p := planner.SessionPaths(opts, it)
		p.Clips = make([]domain.ClipPlan, 0, len(it.Entries))
		for _, e := range it.Entries {
			var clip *domain.Clip
			if e.ClipIdx >= 0 && e.ClipIdx < len(clips) {
				clip = &clips[e.ClipIdx]
			}

			var st planner.ClipState
			if clip != nil {
				s, err := planner.ReadClipState(sp.store, planner.ProcessedPath(opts, clip.Base), clip.Base)
				if err != nil {
					cp := planner.PlanClip(opts, e.Submission, clip, planner.ClipState{})
					cp.ErrorCode = domain.ErrCodeIOFailed
					cp.ErrorMsg = fmt.Sprintf("读取 clip 状态失败：%v", err)
					p.Clips = append(p.Clips, cp)
					continue
				}
				st = s
			}

			cp := planner.PlanClip(opts, e.Submission, clip, st)
			if clip != nil && !(st.HasEntry && st.Entry.MatchesSource(clip.Size, clip.ModTime)) {
				jobs = append(jobs, probeJob{session: len(plans), clip: len(p.Clips)})
			}
			p.Clips = append(p.Clips, cp)
		}
		plans = append(plans, p)
	}

	if err := sp.probeSources(ctx, plans, jobs); err != nil {
		return nil, err
	}

	for i := range plans {
		for j := range plans[i].Clips {
			c := &plans[i].Clips[j]
			if !c.Usable() {
				continue
			}
			if _, _, err := media.VideoDimensions(c.SrcInfo); err != nil {
				c.ErrorCode = domain.ErrCodeProbeFailed
				c.ErrorMsg = err.Error()
			}
		}

		st, err := planner.ReadSessionState(plans[i].OutputAbs, plans[i].MetadataAbs)
		if err != nil {
			return nil, fmt.Errorf("读取 %s 输出状态失败：%w", plans[i].Name, err)
		}
		plans[i] = planner.PlanSession(plans[i], st)
		sp.log.Debug("plan", zap.String("session", planner.Describe(plans[i])))
	}
	return plans, nil
}

// probeSources 并发探测缓存未命中的源文件（上限 = concurrency）。
// 单个文件探测失败只标记该 clip；只有 ctx 取消会返回错误。
func (sp sessionPlanner) probeSources(ctx context.Context, plans []domain.SessionPlan, jobs []probeJob) error {
	if len(jobs) == 0 {
		return nil
	}
	limit := sp.eff.Concurrency
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, j := range jobs {
		c := &plans[j.session].Clips[j.clip]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			info, err := sp.prober.Probe(gctx, c.SrcAbs)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.ErrorCode = domain.ErrCodeProbeFailed
				c.ErrorMsg = err.Error()
				sp.log.Warn("探测失败", zap.String("file", c.SrcAbs), zap.Error(err))
				return nil
			}
			c.SrcInfo = info
			if !sp.store.ReadOnly {
				if err := sp.store.WriteProbe(c.SrcBase, cache.WithSource(c.SrcSize, c.SrcModTime, info)); err != nil {
					sp.log.Warn("写入探测缓存失败", zap.String("file", c.SrcAbs), zap.Error(err))
				}
			}
			return nil
		})
	}
	return g.Wait()
}
