// Package source 读取投稿数据表（CSV 或 HTML 表格），并映射为 domain.Submission。
package source

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Source 把“表格格式差异”限制在本包内部；上层只依赖统一的行结构。
//
// 约束：
// - Load 返回的每一行都以表头列名为 key（已去掉首尾空白）
// - 重复列名或空表头视为错误
type Source interface {
	Name() string
	Load(ctx context.Context, r io.Reader) ([]map[string]string, error)
}

// Registry 是 source 的只读注册表（按 name 索引）。
type Registry struct {
	byName map[string]Source
}

func NewRegistry(sources ...Source) (Registry, error) {
	byName := make(map[string]Source, len(sources))
	for _, s := range sources {
		if s == nil {
			return Registry{}, fmt.Errorf("source 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(s.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("source.Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 source：%q", name)
		}
		byName[name] = s
	}
	return Registry{byName: byName}, nil
}

// DefaultRegistry 注册内置的 csv 与 html。
func DefaultRegistry() Registry {
	r, err := NewRegistry(CSV{}, HTML{})
	if err != nil {
		panic(err)
	}
	return r
}

func (r Registry) Get(name string) (Source, bool) {
	if r.byName == nil {
		return nil, false
	}
	s, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// DataError 表示数据表本身不可用（缺列、格式错误等）。
type DataError struct {
	Msg string
	Err error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return "data_invalid：" + e.Msg + "：" + e.Err.Error()
	}
	return "data_invalid：" + e.Msg
}

func (e *DataError) Unwrap() error { return e.Err }

// header 规范化表头并检查空列名/重复列名。
func header(cells []string) ([]string, error) {
	out := make([]string, len(cells))
	seen := make(map[string]struct{}, len(cells))
	for i, c := range cells {
		c = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
		if c == "" {
			return nil, &DataError{Msg: fmt.Sprintf("第 %d 列表头为空", i+1)}
		}
		if _, ok := seen[c]; ok {
			return nil, &DataError{Msg: fmt.Sprintf("重复的列名 %q", c)}
		}
		seen[c] = struct{}{}
		out[i] = c
	}
	return out, nil
}

// row 把一行单元格按表头组装为 map；短行用空串补齐，多出的单元格丢弃。
func row(head, cells []string) map[string]string {
	m := make(map[string]string, len(head))
	for i, h := range head {
		if i < len(cells) {
			m[h] = strings.TrimSpace(cells[i])
		} else {
			m[h] = ""
		}
	}
	return m
}
