package source

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/John-Robertt/vstitch/internal/infra/fsx"
	"github.com/John-Robertt/vstitch/internal/infra/httpx"
)

// Request 描述一次数据表读取。
type Request struct {
	Source   string // registry 中的 name
	DataFile string // 绝对路径；DataURL 非空时作为下载缓存
	DataURL  string

	// Client 仅 DataURL 非空时使用。
	Client *http.Client
	// DryRun 时下载结果不落盘。
	DryRun bool
}

// Result 是读取到的原始行与来源（文件路径或 URL）。
type Result struct {
	Rows   []map[string]string
	Origin string
}

// Load 读取数据表：DataURL 非空时下载（并缓存到 DataFile），否则读本地文件。
func Load(ctx context.Context, reg Registry, req Request) (Result, error) {
	src, ok := reg.Get(req.Source)
	if !ok {
		return Result{}, fmt.Errorf("未知 source：%q", req.Source)
	}

	var (
		b      []byte
		origin string
		err    error
	)
	if req.DataURL != "" {
		if req.Client == nil {
			return Result{}, fmt.Errorf("data_url 已设置但 http client 为空")
		}
		origin = req.DataURL
		b, err = httpx.Get(ctx, req.Client, req.DataURL)
		if err != nil {
			return Result{}, fmt.Errorf("下载数据表失败：%w", err)
		}
		if !req.DryRun {
			dir, name := filepath.Split(req.DataFile)
			if err := fsx.EnsureDir(dir); err != nil {
				return Result{}, err
			}
			if err := fsx.WriteFileAtomic(dir, name, b); err != nil {
				return Result{}, fmt.Errorf("缓存数据表失败：%w", err)
			}
		}
	} else {
		origin = req.DataFile
		b, err = os.ReadFile(req.DataFile)
		if err != nil {
			return Result{}, fmt.Errorf("读取数据表失败：%w", err)
		}
	}

	rows, err := src.Load(ctx, bytes.NewReader(b))
	if err != nil {
		return Result{}, err
	}
	return Result{Rows: rows, Origin: origin}, nil
}
