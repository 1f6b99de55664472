package main

import (
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/John-Robertt/vstitch/internal/app/run"
	"github.com/John-Robertt/vstitch/internal/config"
	"github.com/John-Robertt/vstitch/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// 约束：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：ffmpeg 编码一个 session 可能要几分钟，长时间无条目完成时定期输出一行
type progressUI struct {
	w  io.Writer
	st uiStyles

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	fail    int
	skip    int
	active  map[string]time.Time

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

type uiStyles struct {
	title lipgloss.Style
	label lipgloss.Style
	ok    lipgloss.Style
	fail  lipgloss.Style
	skip  lipgloss.Style
	warn  lipgloss.Style
}

// newStyles 按 w 的终端能力渲染颜色；非终端（测试里的 buffer）输出纯文本。
func newStyles(w io.Writer) uiStyles {
	r := lipgloss.NewRenderer(w)
	return uiStyles{
		title: r.NewStyle().Bold(true),
		label: r.NewStyle().Faint(true),
		ok:    r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		fail:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		skip:  r.NewStyle().Foreground(lipgloss.Color("8")),
		warn:  r.NewStyle().Foreground(lipgloss.Color("3")),
	}
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		st:                 newStyles(w),
		active:             map[string]time.Time{},
		keepaliveThreshold: 10 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "render"
	modeHint := ""
	if eff.DryRun {
		mode = "dry-run"
		modeHint = " (不调用 ffmpeg/不写入)"
	}

	fmt.Fprintln(p.w, p.st.title.Render(fmt.Sprintf("[%s] vstitch %s", now.Format("15:04:05"), mode)))
	fmt.Fprintln(p.w, p.st.label.Render("配置（生效）:"))
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigFile)
	}
	fmt.Fprintf(p.w, "  root: %s\n", eff.Paths.Root)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	if eff.DataURL != "" {
		fmt.Fprintf(p.w, "  data: %s (%s, 缓存到 %s)\n", truncate(eff.DataURL, 120), eff.Source, eff.DataFile)
	} else {
		fmt.Fprintf(p.w, "  data: %s (%s)\n", eff.DataFile, eff.Source)
	}
	if len(eff.Filters) > 0 {
		fmt.Fprintf(p.w, "  filters: %s\n", formatFilters(eff.Filters))
	}
	fmt.Fprintf(p.w, "  video: %dx%d@%d %s/%d\n", eff.Render.Width, eff.Render.Height, eff.Render.FPS, eff.Render.Font, eff.Render.FontSize)
	fmt.Fprintf(p.w, "  loudness: I=%g LRA=%g TP=%g\n", eff.Render.LoudnessI, eff.Render.LoudnessLRA, eff.Render.LoudnessTP)
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  thumbnail: %s\n", onOff(eff.Thumbnail))

	fmt.Fprintln(p.w, p.st.label.Render("输出:"))
	fmt.Fprintf(p.w, "  output: %s\n", eff.Paths.Output)
	fmt.Fprintf(p.w, "  tmp: %s\n", eff.Paths.Tmp)
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "data":
		fmt.Fprintf(p.w, "数据表: rows=%d submissions=%d filtered=%d no_id=%d duplicate=%d (%s)\n",
			intField(fields, "rows"), intField(fields, "submissions"), intField(fields, "filtered"),
			intField(fields, "no_id"), intField(fields, "duplicate"), formatShortDuration(dur),
		)
	case "scan":
		fmt.Fprintf(p.w, "扫描: files=%d unmatched=%d (%s)\n",
			intField(fields, "files"), intField(fields, "unmatched"), formatShortDuration(dur),
		)
	case "group":
		fmt.Fprintf(p.w, "分组: sessions=%d orphans=%d (%s)\n",
			intField(fields, "sessions"), intField(fields, "orphans"), formatShortDuration(dur),
		)
	case "plan":
		fmt.Fprintf(p.w, "规划: sessions=%d need_process=%d need_render=%d (%s)\n",
			intField(fields, "sessions"), intField(fields, "need_process"), intField(fields, "need_render"),
			formatShortDuration(dur),
		)
	case "exec":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total_items")
		fmt.Fprintf(p.w, "执行: workers=%d sessions=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnSessionStart(name string, clips int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active[name] = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total
	name := sessionName(res)
	delete(p.active, name)

	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
	case domain.StatusFailed:
		p.fail++
	case domain.StatusSkipped:
		p.skip++
	}

	fmt.Fprintln(p.w, formatItemLine(p.st, idx, total, res, dur))
	for _, c := range res.Clips {
		if c.Status != domain.ClipStatusFailed && c.Status != domain.ClipStatusMissing {
			continue
		}
		fmt.Fprintln(p.w, p.st.warn.Render(fmt.Sprintf("    - %s %s: %s", c.ID, c.ErrorCode, truncate(c.ErrorMsg, 140))))
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) OnProgress(done, total, ok, fail, skip, active int, activeSessions []string, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, formatProgressLine(done, total, ok, fail, skip, active, activeSessions, elapsed))
	p.lastPrinted = time.Now()
}

// Stop 停止 keepalive（run 提前结束时，例如中断）。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 10 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					names := make([]string, 0, len(p.active))
					for n := range p.active {
						names = append(names, n)
					}
					sort.Strings(names)
					fmt.Fprintln(p.w, formatProgressLine(p.done, p.total, p.ok, p.fail, p.skip, len(names), names, time.Since(p.startedAt)))
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func formatItemLine(st uiStyles, idx, total int, res domain.ItemResult, dur time.Duration) string {
	name := sessionName(res)
	prefix := fmt.Sprintf("[%d/%d] %s", idx, total, name)
	switch res.Status {
	case domain.StatusFailed:
		return fmt.Sprintf("%s %s %s: %s (%s)", prefix, st.fail.Render("FAIL"), res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur))
	case domain.StatusSkipped:
		return fmt.Sprintf("%s %s (已是最新) (%s)", prefix, st.skip.Render("SKIP"), formatShortDuration(dur))
	default:
		note := ""
		if res.ErrorCode != "" {
			note = " " + st.warn.Render(res.ErrorCode)
		}
		return fmt.Sprintf("%s %s chapters=%d length=%s%s (%s)", prefix, st.ok.Render("OK"), res.Chapters,
			formatElapsed(time.Duration(res.DurationSec*float64(time.Second))), note, formatShortDuration(dur))
	}
}

func formatProgressLine(done, total, ok, fail, skip, active int, activeSessions []string, elapsed time.Duration) string {
	line := fmt.Sprintf("进度: done=%d/%d ok=%d fail=%d skip=%d active=%d elapsed=%s",
		done, total, ok, fail, skip, active, formatElapsed(elapsed))
	if len(activeSessions) > 0 {
		line += " [" + strings.Join(activeSessions, " ") + "]"
	}
	return line
}

// sessionName 返回输出文件名（不含扩展名）；与 OnSessionStart 的 name 一致。
func sessionName(res domain.ItemResult) string {
	if res.Output == "" {
		return res.Session
	}
	base := filepath.Base(res.Output)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatFilters(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, " ")
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

// truncate 按字符（rune）截断，避免把中文错误信息切成半个字符。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
