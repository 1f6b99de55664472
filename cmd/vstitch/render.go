package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/vstitch/internal/app/run"
	"github.com/John-Robertt/vstitch/internal/config"
	"github.com/John-Robertt/vstitch/internal/domain"
)

func newRenderCmd(env *cliEnv, g *globalFlags) *cobra.Command {
	var publishAfter bool
	cmd := &cobra.Command{
		Use:   "render [root]",
		Short: "读取投稿表，预处理视频并按 session 拼接输出",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env.code = env.render(cmd, args, g, publishAfter)
			return nil
		},
	}
	cmd.Flags().Bool("dry-run", false, "只规划并输出报告，不调用 ffmpeg、不写任何文件")
	cmd.Flags().Int("concurrency", 0, fmt.Sprintf("并发处理的 session 数（1-%d）", config.MaxConcurrency))
	cmd.Flags().BoolVar(&publishAfter, "publish", false, "渲染成功后上传输出到对象存储")
	return cmd
}

func (e *cliEnv) render(cmd *cobra.Command, args []string, g *globalFlags, publishAfter bool) int {
	eff, err := e.loadConfig(cmd, args, g)
	if err != nil {
		cwd, _ := e.getwd()
		e.emitReport(reportForConfigError(cwd, args, err))
		return 1
	}
	if publishAfter && eff.DryRun {
		fmt.Fprintln(e.stderr, "参数错误：--publish 不能与 dry-run 同时使用")
		return 2
	}

	log, closeLog, err := e.newLogger(eff)
	if err != nil {
		fmt.Fprintf(e.stderr, "初始化日志失败：%v\n", err)
		return 1
	}
	defer closeLog()

	progressW, interactive := e.pickProgressWriter()
	rr := e.renderOnce(cmd.Context(), eff, log, progressW, interactive)

	e.emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}

	code := 0
	if !rr.OK() {
		code = 1
	}
	if publishAfter {
		if rr.Summary.Failed > 0 {
			fmt.Fprintln(e.stderr, "存在失败的 session，跳过上传")
			return 1
		}
		rep, err := e.publishOutputs(cmd.Context(), eff, log)
		if err != nil {
			fmt.Fprintf(e.stderr, "上传失败：%v\n", err)
			return 1
		}
		fmt.Fprintln(e.stderr, publishSummary(rep))
		if rep.Failed() > 0 {
			code = 1
		}
	}
	return code
}

// renderOnce 执行一次 render；交互终端下挂载进度输出。
func (e *cliEnv) renderOnce(ctx context.Context, eff config.EffectiveConfig, log *zap.Logger, progressW io.Writer, interactive bool) domain.RunReport {
	var obs run.Observer
	if interactive {
		ui := newProgressUI(progressW)
		defer ui.Stop()
		obs = ui
	}
	return run.ExecuteWithObserver(ctx, eff, e.deps(log), obs)
}
