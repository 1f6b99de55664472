package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/vstitch/internal/config"
	"github.com/John-Robertt/vstitch/internal/publish"
)

func newPublishCmd(env *cliEnv, g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "publish [root]",
		Short: "把 videos/output 中的 session 视频与缩略图上传到 S3 兼容存储",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env.code = env.publish(cmd, args, g)
			return nil
		},
	}
}

func (e *cliEnv) publish(cmd *cobra.Command, args []string, g *globalFlags) int {
	eff, err := e.loadConfig(cmd, args, g)
	if err != nil {
		fmt.Fprintf(e.stderr, "%v\n", err)
		return 1
	}
	log, closeLog, err := e.newLogger(eff)
	if err != nil {
		fmt.Fprintf(e.stderr, "初始化日志失败：%v\n", err)
		return 1
	}
	defer closeLog()

	rep, err := e.publishOutputs(cmd.Context(), eff, log)
	if err != nil {
		fmt.Fprintf(e.stderr, "上传失败：%v\n", err)
		return 1
	}

	if isTTY(e.stdout) {
		for _, it := range rep.Items {
			if it.ErrorMsg != "" {
				fmt.Fprintf(e.stdout, "%s %s: %s\n", it.Key, it.Status, it.ErrorMsg)
				continue
			}
			fmt.Fprintf(e.stdout, "%s %s\n", it.Key, it.Status)
		}
	} else {
		_ = json.NewEncoder(e.stdout).Encode(rep)
	}
	fmt.Fprintln(e.stderr, publishSummary(rep))

	if rep.Failed() > 0 {
		return 1
	}
	return 0
}

func (e *cliEnv) publishOutputs(ctx context.Context, eff config.EffectiveConfig, log *zap.Logger) (publish.Report, error) {
	if !eff.Publish.Enabled() {
		return publish.Report{}, fmt.Errorf("未配置 publish.endpoint（或 MINIO_ENDPOINT）")
	}
	files, err := publish.Files(eff.Paths.Output, eff.OutputPrefix, eff.OutputExt)
	if err != nil {
		return publish.Report{}, fmt.Errorf("读取输出目录失败：%w", err)
	}
	store, err := e.newStore(eff.Publish)
	if err != nil {
		return publish.Report{}, err
	}
	return publish.New(store, eff.Publish, log).Publish(ctx, files)
}

func publishSummary(rep publish.Report) string {
	var uploaded, skipped int
	for _, it := range rep.Items {
		switch it.Status {
		case publish.StatusUploaded:
			uploaded++
		case publish.StatusSkipped:
			skipped++
		}
	}
	return fmt.Sprintf("上传：bucket=%s uploaded=%d skipped=%d failed=%d", rep.Bucket, uploaded, skipped, rep.Failed())
}
