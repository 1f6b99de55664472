package run

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/John-Robertt/vstitch/internal/app"
	"github.com/John-Robertt/vstitch/internal/config"
	"github.com/John-Robertt/vstitch/internal/domain"
	"github.com/John-Robertt/vstitch/internal/ident"
	"github.com/John-Robertt/vstitch/internal/infra/cache"
	"github.com/John-Robertt/vstitch/internal/infra/fsx"
	"github.com/John-Robertt/vstitch/internal/infra/httpx"
	"github.com/John-Robertt/vstitch/internal/media"
	"github.com/John-Robertt/vstitch/internal/scan"
	"github.com/John-Robertt/vstitch/internal/source"
)

// Deps 是一次 run 的外部依赖；测试用假实现替换 Runner/Prober。
type Deps struct {
	Sources source.Registry
	Runner  media.Runner
	Prober  media.Prober
	Log     *zap.Logger

	// HTTPClient 为空时按 eff.ProxyURL 创建（仅 data_url 非空时需要）。
	HTTPClient *http.Client
}

// DefaultDeps 返回真实 ffmpeg/ffprobe 与默认数据源。
func DefaultDeps(log *zap.Logger) Deps {
	return Deps{
		Sources: source.DefaultRegistry(),
		Runner:  media.ExecRunner{},
		Prober:  media.FFProbe{},
		Log:     log,
	}
}

// Execute 执行一次 render（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单个 session 失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, deps, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) domain.RunReport {
	started := time.Now().UTC()
	if obs == nil {
		obs = nopObserver{}
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))

	obs.OnStart(eff)

	rr := domain.RunReport{
		RunID:     runID,
		Root:      eff.Paths.Root,
		DryRun:    eff.DryRun,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 32),
	}
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		if !eff.DryRun {
			if err := WriteReport(eff.Paths.ReportPath(), rr); err != nil {
				log.Error("写入 report 失败", zap.Error(err))
			}
		}
		return rr
	}

	if !eff.DryRun {
		if err := eff.Paths.Ensure(); err != nil {
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("创建目录失败：%v", err)))
			rr.FinishedAt = time.Now().UTC()
			rr.Finalize()
			return rr
		}
	}

	// data
	dataStarted := time.Now()
	subs, st, err := loadSubmissions(ctx, eff, deps)
	if err != nil {
		log.Error("读取数据表失败", zap.Error(err))
		code := domain.ErrCodeDataFailed
		var de *source.DataError
		if errors.As(err, &de) {
			code = domain.ErrCodeDataInvalid
		}
		rr.Items = append(rr.Items, syntheticFailed(code, err.Error()))
		return finish()
	}
	obs.OnPhaseDone("data", map[string]any{
		"rows":        st.Rows,
		"submissions": len(subs),
		"filtered":    st.Filtered,
		"no_id":       st.NoID,
		"duplicate":   st.Duplicate,
	}, time.Since(dataStarted))

	// scan + ident
	scanStarted := time.Now()
	files, err := scan.ScanVideos(eff.Paths.Inputs)
	if err != nil {
		msg := fmt.Sprintf("扫描失败：%v", err)
		if errors.Is(err, fs.ErrNotExist) {
			msg = fmt.Sprintf("inputs 目录不存在：%s；请先运行 vstitch init", eff.Paths.Inputs)
		}
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, msg))
		return finish()
	}
	clips, unmatched := ident.Resolve(files, eff.IDPrefix)
	obs.OnPhaseDone("scan", map[string]any{
		"files":     len(files),
		"unmatched": len(unmatched),
	}, time.Since(scanStarted))

	for _, u := range unmatched {
		rr.Items = append(rr.Items, unmatchedItem(eff.Paths.Root, u))
	}

	// group
	groupStarted := time.Now()
	items, orphans := app.GroupBySession(subs, clips, eff.OutputPrefix)
	for _, i := range orphans {
		log.Info("视频没有对应的投稿（已忽略）", zap.String("file", clips[i].RelPath), zap.String("id", string(clips[i].ID)))
	}
	obs.OnPhaseDone("group", map[string]any{
		"sessions": len(items),
		"orphans":  len(orphans),
	}, time.Since(groupStarted))

	// plan
	planStarted := time.Now()
	store := cache.New(eff.Paths.CacheDir(), eff.DryRun)
	pl := sessionPlanner{eff: eff, store: store, prober: deps.Prober, log: log}
	plans, err := pl.plan(ctx, items, clips)
	if err != nil {
		msg := fmt.Sprintf("规划失败：%v", err)
		if fsx.IsPathTypeConflict(err) {
			msg += "；请移走占用输出文件名的目录"
		}
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, msg))
		return finish()
	}
	var needProcess, needRender int
	for i := range plans {
		for _, c := range plans[i].Clips {
			if c.Usable() && c.NeedProcess {
				needProcess++
			}
		}
		if plans[i].NeedRender {
			needRender++
		}
	}
	obs.OnPhaseDone("plan", map[string]any{
		"sessions":     len(plans),
		"need_process": needProcess,
		"need_render":  needRender,
	}, time.Since(planStarted))

	// exec：按 session 并发（worker pool），session 内串行。
	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}
	obs.OnPhaseDone("exec", map[string]any{
		"workers":     workers,
		"total_items": len(plans),
	}, 0)

	ex := executor{
		eff:   eff,
		store: store,
		ff:    media.FFmpeg{Bin: eff.FFmpegPath, Runner: deps.Runner, Log: log},
		probe: deps.Prober,
		log:   log,
	}

	type execResult struct {
		res domain.ItemResult
		dur time.Duration
	}

	jobs := make(chan domain.SessionPlan)
	results := make(chan execResult, len(plans))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range jobs {
				obs.OnSessionStart(p.Name, len(p.Clips))
				oneStarted := time.Now()
				r := ex.execOne(ctx, p)
				results <- execResult{res: r, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		for _, p := range plans {
			jobs <- p
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for it := range results {
		done++
		rr.Items = append(rr.Items, it.res)
		obs.OnItemDone(done, len(plans), it.res, it.dur)
	}

	return finish()
}

func loadSubmissions(ctx context.Context, eff config.EffectiveConfig, deps Deps) ([]domain.Submission, source.Stats, error) {
	req := source.Request{
		Source:   eff.Source,
		DataFile: eff.DataFile,
		DataURL:  eff.DataURL,
		Client:   deps.HTTPClient,
		DryRun:   eff.DryRun,
	}
	if req.DataURL != "" && req.Client == nil {
		c, err := httpx.NewClient(eff.ProxyURL)
		if err != nil {
			return nil, source.Stats{}, fmt.Errorf("proxy_url 无效：%w", err)
		}
		req.Client = c
	}
	res, err := source.Load(ctx, deps.Sources, req)
	if err != nil {
		return nil, source.Stats{}, err
	}
	subs, st, err := source.Submissions(res.Rows, eff.Columns, eff.Filters)
	if err != nil {
		return nil, st, err
	}
	if deps.Log != nil {
		deps.Log.Debug("数据表已读取", zap.String("origin", res.Origin), zap.Int("rows", st.Rows), zap.Int("submissions", len(subs)))
	}
	return subs, st, nil
}

func unmatchedItem(root string, u domain.Unmatched) domain.ItemResult {
	item := domain.ItemResult{
		Status:    domain.StatusUnmatched,
		ErrorCode: domain.ErrCodeUnmatchedID,
		Clips: []domain.ClipResult{{
			Src:    relTo(root, u.File.AbsPath),
			Status: domain.ClipStatusUnmatched,
		}},
	}
	switch u.Kind {
	case domain.UnmatchedDuplicate:
		item.ErrorCode = domain.ErrCodeDuplicateID
		item.ErrorMsg = fmt.Sprintf("与 %s 的 ID 相同（%s），已使用后者", u.Winner, u.File.ID)
		item.Clips[0].ID = string(u.File.ID)
	default:
		item.ErrorMsg = "无法从文件名解析出 ID；请按 <前缀><ID>.<扩展名> 命名，例如 nime2025_123.mp4"
	}
	return item
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
		Clips:     []domain.ClipResult{},
	}
}

// relTo 尽量输出相对 root 的路径；失败则输出原始 abs（至少可追溯）。
func relTo(root, abs string) string {
	if abs == "" {
		return ""
	}
	if rel, err := filepath.Rel(root, abs); err == nil {
		return filepath.ToSlash(rel)
	}
	return abs
}
