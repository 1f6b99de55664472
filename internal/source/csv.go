package source

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
)

// CSV 读取带表头的 CSV（RFC 4180，容忍变长行）。
type CSV struct{}

func (CSV) Name() string { return "csv" }

func (CSV) Load(ctx context.Context, r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	first, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &DataError{Msg: "CSV 为空"}
		}
		return nil, &DataError{Msg: "CSV 表头无法解析", Err: err}
	}
	head, err := header(first)
	if err != nil {
		return nil, err
	}

	var rows []map[string]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DataError{Msg: "CSV 无法解析", Err: err}
		}
		if isBlank(rec) {
			continue
		}
		rows = append(rows, row(head, rec))
	}
	return rows, nil
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
