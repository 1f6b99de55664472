package domain

// Unmatched 描述无法参与渲染的输入文件。
const (
	UnmatchedNoID      = "no_id"
	UnmatchedDuplicate = "duplicate"
)

type Unmatched struct {
	File Clip
	Kind string // UnmatchedNoID | UnmatchedDuplicate
	// Winner 仅 duplicate 时非空：同 ID 下被选中的文件（相对路径）。
	Winner string
}
