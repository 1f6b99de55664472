// Package media 封装对 ffmpeg/ffprobe 的调用：参数构造、输出解析与进程执行。
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner 执行外部命令；stdout 为 nil 时丢弃标准输出。返回完整 stderr（ffmpeg 的诊断与 loudnorm 结果都在这里）。
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdout io.Writer) (stderr []byte, err error)
}

// ExecRunner 用 os/exec 执行命令；ctx 取消时进程被杀死。
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string, stdout io.Writer) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	if stdout == nil {
		stdout = io.Discard
	}
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stderr.Bytes(), nil
	}
	if ctx.Err() != nil {
		return stderr.Bytes(), ctx.Err()
	}
	code := -1
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code = ee.ExitCode()
	}
	return stderr.Bytes(), &ExecError{Name: name, ExitCode: code, Stderr: tail(stderr.String(), 2048), Err: err}
}

// ExecError 表示外部命令执行失败（启动失败或非零退出）。
type ExecError struct {
	Name     string
	ExitCode int
	Stderr   string // 末尾片段，用于 report error_msg
	Err      error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("%s 退出码 %d", e.Name, e.ExitCode)
	if s := lastLine(e.Stderr); s != "" {
		msg += "：" + s
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n ")
	if i := strings.LastIndexAny(s, "\r\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
