package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/vstitch/internal/config"
	"github.com/John-Robertt/vstitch/internal/infra/fsx"
	"github.com/John-Robertt/vstitch/internal/layout"
)

func newInitCmd(env *cliEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "init [root]",
		Short: "创建 videos/inputs、videos/tmp、videos/output、data 目录与示例配置",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env.code = env.initRoot(args)
			return nil
		},
	}
}

func (e *cliEnv) initRoot(args []string) int {
	cwd, err := e.getwd()
	if err != nil {
		fmt.Fprintf(e.stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	root := cwd
	if len(args) > 0 {
		root = args[0]
		if !filepath.IsAbs(root) {
			root = filepath.Join(cwd, root)
		}
	}

	p := layout.For(root)
	if err := p.Ensure(); err != nil {
		fmt.Fprintf(e.stderr, "创建目录失败：%v\n", err)
		return 1
	}
	for _, d := range []string{p.Inputs, p.Tmp, p.Output, p.Data} {
		fmt.Fprintf(e.stdout, "目录: %s\n", d)
	}

	err = fsx.WriteFileAtomicNoOverwrite(p.Root, config.FileName, []byte(config.SampleYAML))
	switch {
	case err == nil:
		fmt.Fprintf(e.stdout, "配置: %s（示例）\n", filepath.Join(p.Root, config.FileName))
	case errors.Is(err, os.ErrExist):
		fmt.Fprintf(e.stdout, "配置: %s（已存在，保留）\n", filepath.Join(p.Root, config.FileName))
	default:
		fmt.Fprintf(e.stderr, "写入示例配置失败：%v\n", err)
		return 1
	}
	fmt.Fprintf(e.stdout, "下一步：把投稿视频放入 %s，投稿表放入 %s，然后运行 vstitch render\n", p.Inputs, p.Data)
	return 0
}
