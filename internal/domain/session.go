package domain

// Entry 是 session 内的一条投稿；ClipIdx 指向 []Clip，-1 表示没有找到视频。
type Entry struct {
	Submission Submission
	ClipIdx    int
}

// SessionItem 是按 session 聚合后的工作单元（一条 session 对应一个输出视频）。
// Entries 保持数据表中的原始顺序，这也是最终拼接与章节的顺序。
type SessionItem struct {
	Session string
	Name    string // 输出文件名（不含扩展名），例如 video_P1
	Entries []Entry
}
