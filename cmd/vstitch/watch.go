package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/vstitch/internal/config"
	"github.com/John-Robertt/vstitch/internal/watch"
)

func newWatchCmd(env *cliEnv, g *globalFlags) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "先渲染一次，之后在 inputs 或数据表变化时自动重新渲染",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env.code = env.watch(cmd, args, g, debounce)
			return nil
		},
	}
	cmd.Flags().Int("concurrency", 0, fmt.Sprintf("并发处理的 session 数（1-%d）", config.MaxConcurrency))
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "最后一次文件变化后等待多久再触发渲染")
	return cmd
}

// watch 在前台运行直到收到中断信号。stdout 非 TTY 时每次渲染输出一行 RunReport JSON。
func (e *cliEnv) watch(cmd *cobra.Command, args []string, g *globalFlags, debounce time.Duration) int {
	eff, err := e.loadConfig(cmd, args, g)
	if err != nil {
		cwd, _ := e.getwd()
		e.emitReport(reportForConfigError(cwd, args, err))
		return 1
	}
	if eff.DryRun {
		fmt.Fprintln(e.stderr, "参数错误：watch 不支持 dry-run（配置中 dry_run=true）")
		return 2
	}

	log, closeLog, err := e.newLogger(eff)
	if err != nil {
		fmt.Fprintf(e.stderr, "初始化日志失败：%v\n", err)
		return 1
	}
	defer closeLog()

	ctx := cmd.Context()
	progressW, interactive := e.pickProgressWriter()

	cur := eff
	renderAll := func(ctx context.Context) {
		// 每次触发都重新读取配置：数据表列名、过滤条件等的修改无需重启。
		next, err := e.loadConfig(cmd, args, g)
		var reason string
		cur, reason = nextWatchConfig(cur, next, err)
		if reason != "" {
			log.Error(reason, zap.Error(err))
		}
		rr := e.renderOnce(ctx, cur, log, progressW, interactive)
		if ctx.Err() != nil {
			return
		}
		e.emitReport(rr)
	}

	dirs := []string{eff.Paths.Inputs}
	// data_url 模式下 data/ 是下载缓存：监听它会让每次渲染触发下一次渲染。
	if eff.DataURL == "" {
		dirs = append(dirs, eff.Paths.Data)
	}
	// 先建立监听再做首次渲染，首次渲染期间的变化不会丢失。
	w := watch.Watcher{Dirs: dirs, Debounce: debounce, Log: log, Initial: true}
	log.Info("开始监听", zap.Strings("dirs", dirs), zap.Duration("debounce", debounce))
	if err := w.Run(ctx, renderAll); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(e.stderr, "监听失败：%v\n", err)
		return 1
	}
	return 0
}

// nextWatchConfig 决定本次触发使用的配置：读取失败或被改成 dry-run 时沿用上一次配置，
// 并返回需要记录的原因。
func nextWatchConfig(prev, next config.EffectiveConfig, err error) (config.EffectiveConfig, string) {
	switch {
	case err != nil:
		return prev, "重新读取配置失败，沿用上一次配置"
	case next.DryRun:
		return prev, "watch 不支持 dry-run（配置中 dry_run=true），沿用上一次配置"
	}
	return next, ""
}
