package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/vstitch/internal/app/run"
	"github.com/John-Robertt/vstitch/internal/config"
	"github.com/John-Robertt/vstitch/internal/domain"
	"github.com/John-Robertt/vstitch/internal/logx"
	"github.com/John-Robertt/vstitch/internal/publish"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], newEnv(os.Stdout, os.Stderr))
	stop()
	os.Exit(code)
}

// cliEnv 汇集各子命令共享的输出流与可替换依赖（测试注入假 ffmpeg / 对象存储）。
type cliEnv struct {
	stdout io.Writer
	stderr io.Writer

	getwd    func() (string, error)
	deps     func(log *zap.Logger) run.Deps
	newStore func(p config.Publish) (publish.ObjectStore, error)

	// code 是子命令设置的退出码；参数错误由 execute 统一返回 2。
	code int
}

func newEnv(stdout, stderr io.Writer) *cliEnv {
	return &cliEnv{
		stdout: stdout,
		stderr: stderr,
		getwd:  os.Getwd,
		deps:   run.DefaultDeps,
		newStore: func(p config.Publish) (publish.ObjectStore, error) {
			c, err := publish.NewClient(p)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

// globalFlags 是所有子命令共享的参数。
type globalFlags struct {
	configFile string
	logLevel   string
}

func execute(ctx context.Context, args []string, env *cliEnv) int {
	var g globalFlags
	root := &cobra.Command{
		Use:           "vstitch",
		Short:         "把投稿视频按 session 拼接成带章节的会议视频",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configFile, "config", "", "配置文件（默认 <root>/vstitch.yaml）")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "日志级别：debug|info|warn|error")

	root.AddCommand(
		newInitCmd(env),
		newRenderCmd(env, &g),
		newWatchCmd(env, &g),
		newPublishCmd(env, &g),
	)
	root.SetArgs(args)
	root.SetOut(env.stdout)
	root.SetErr(env.stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if err != nil {
		fmt.Fprintf(env.stderr, "参数错误：%v\n\n", err)
		if cmd != nil {
			fmt.Fprint(env.stderr, cmd.UsageString())
		}
		return 2
	}
	return env.code
}

// loadConfig 把位置参数与 flag 合并为 CLIArgs 并读取生效配置。
func (e *cliEnv) loadConfig(cmd *cobra.Command, args []string, g *globalFlags) (config.EffectiveConfig, error) {
	cwd, err := e.getwd()
	if err != nil {
		return config.EffectiveConfig{}, &config.Error{Code: config.ErrCodeInvalid, Path: ".", Err: err}
	}
	cli := config.CLIArgs{
		ConfigFile: g.configFile,
		LogLevel:   g.logLevel,
	}
	if len(args) > 0 {
		cli.Path = args[0]
	}
	if f := cmd.Flags().Lookup("dry-run"); f != nil && f.Changed {
		cli.DryRun, _ = cmd.Flags().GetBool("dry-run")
		cli.DryRunSet = true
	}
	if f := cmd.Flags().Lookup("concurrency"); f != nil && f.Changed {
		cli.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		cli.ConcurrencySet = true
	}
	return config.LoadEffective(cwd, cli)
}

// newLogger 创建控制台 + 文件日志；dry-run 不写日志文件（不落盘）。
func (e *cliEnv) newLogger(eff config.EffectiveConfig) (*zap.Logger, func() error, error) {
	cfg := logx.Config{Level: eff.LogLevel, Console: e.stderr}
	if !eff.DryRun {
		cfg.FilePath = eff.Paths.LogPath()
	}
	return logx.New(cfg)
}

func (e *cliEnv) emitReport(rr domain.RunReport) {
	if isTTY(e.stdout) {
		fmt.Fprintln(e.stdout, summaryLine(rr))
		if !rr.OK() {
			for _, it := range rr.Items {
				if it.Status != domain.StatusFailed && it.Status != domain.StatusUnmatched {
					continue
				}
				key := it.Session
				if key == "" && len(it.Clips) > 0 {
					// unmatched/config 等合成条目：用首个输入文件路径做定位锚点。
					key = it.Clips[0].Src
				}
				if key == "" {
					key = "<unknown>"
				}
				fmt.Fprintf(e.stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	_ = json.NewEncoder(e.stdout).Encode(rr)
	fmt.Fprintln(e.stderr, summaryLine(rr))
}

func summaryLine(rr domain.RunReport) string {
	return fmt.Sprintf("完成：processed=%d skipped=%d failed=%d unmatched=%d clip_failed=%d clip_missing=%d",
		rr.Summary.Processed, rr.Summary.Skipped, rr.Summary.Failed, rr.Summary.Unmatched,
		rr.Summary.ClipFailed, rr.Summary.ClipMissing,
	)
}

func reportForConfigError(cwd string, args []string, err error) domain.RunReport {
	root := cwd
	if len(args) > 0 {
		root = args[0]
		if !filepath.IsAbs(root) {
			root = filepath.Join(cwd, root)
		}
	}
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	now := time.Now().UTC()
	rr := domain.RunReport{
		Root:       filepath.Clean(root),
		DryRun:     true,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			ErrorMsg:  err.Error(),
			Clips:     []domain.ClipResult{},
		}},
	}
	rr.Finalize()
	return rr
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (e *cliEnv) pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(e.stderr) {
		return e.stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(e.stdout) {
		return e.stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	if !eff.DryRun {
		fmt.Fprintf(w, "report: %s\n", eff.Paths.ReportPath())
	}
	fmt.Fprintf(w, "output: %s\n", eff.Paths.Output)
}
