package domain

// Submission 是数据表中的一行（已按列映射与过滤）。
type Submission struct {
	ID      ID
	Title   string
	Authors string
	Session string

	// Row 保留原始列，便于日志与排错。
	Row map[string]string
}

// TitleText 返回叠加到画面上的标题文字。
func (s Submission) TitleText(withAuthors bool) string {
	if withAuthors && s.Authors != "" {
		return s.Title + " - " + s.Authors
	}
	return s.Title
}
