package source

import (
	"fmt"
	"sort"
	"strings"

	"github.com/John-Robertt/vstitch/internal/config"
	"github.com/John-Robertt/vstitch/internal/domain"
)

// Stats 统计行映射过程中被丢弃的行，供日志与 report 使用。
type Stats struct {
	Rows      int // 数据表总行数
	Filtered  int // 不满足 filters 被跳过
	NoID      int // id 为空或不合法
	Duplicate int // 与之前的行 ID 重复（保留第一行）
}

// Submissions 按 filters 过滤行，并把列映射为 domain.Submission。
//
// 规则：
// - filters 的比较去空白、大小写不敏感
// - id/title/session 列必须存在；authors 列可选（缺失时为空串）
// - filters 引用了不存在的列视为错误（否则过滤会静默地丢掉全部数据）
// - 输出保持数据表原始顺序
func Submissions(rows []map[string]string, cols config.Columns, filters map[string]string) ([]domain.Submission, Stats, error) {
	st := Stats{Rows: len(rows)}
	if len(rows) == 0 {
		return nil, st, nil
	}

	var missing []string
	for _, c := range []string{cols.ID, cols.Title, cols.Session} {
		if _, ok := rows[0][c]; !ok {
			missing = append(missing, c)
		}
	}
	for c := range filters {
		if _, ok := rows[0][c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, st, &DataError{Msg: fmt.Sprintf("缺少列 %s", strings.Join(missing, ", "))}
	}

	seen := make(map[string]struct{}, len(rows))
	out := make([]domain.Submission, 0, len(rows))
	for _, r := range rows {
		if !matches(r, filters) {
			st.Filtered++
			continue
		}
		id, ok := domain.ParseID(r[cols.ID])
		if !ok {
			st.NoID++
			continue
		}
		if _, dup := seen[id.Key()]; dup {
			st.Duplicate++
			continue
		}
		seen[id.Key()] = struct{}{}

		out = append(out, domain.Submission{
			ID:      id,
			Title:   strings.TrimSpace(r[cols.Title]),
			Authors: strings.TrimSpace(r[cols.Authors]),
			Session: strings.TrimSpace(r[cols.Session]),
			Row:     r,
		})
	}
	return out, st, nil
}

func matches(r map[string]string, filters map[string]string) bool {
	for col, want := range filters {
		if !strings.EqualFold(strings.TrimSpace(r[col]), strings.TrimSpace(want)) {
			return false
		}
	}
	return true
}
