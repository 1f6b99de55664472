// Package ffmeta 生成 ffmpeg 的 FFMETADATA1 章节文件。
package ffmeta

import (
	"bytes"
	"fmt"
	"math"
	"strings"
)

// Chapter 是一个章节：标题与以秒为单位的时长。
type Chapter struct {
	Title       string
	DurationSec float64
}

// Encode 把章节列表编码为 FFMETADATA1 文本。
//
// 规则：
// - 时间基固定 1/1000（毫秒 ticks，向下取整）
// - 第一个章节从 0 开始；下一章节 START = 上一章节 END + 1
// - title 中的 '=' ';' '#' '\' 与换行按 ffmpeg 要求转义
// - 输出只依赖输入：相同章节 => 相同字节（用于判断 session 是否需要重新拼接）
func Encode(title string, chapters []Chapter) []byte {
	var b bytes.Buffer
	b.WriteString(";FFMETADATA1\n")
	if t := strings.TrimSpace(title); t != "" {
		fmt.Fprintf(&b, "title=%s\n", Escape(t))
	}

	var playhead int64
	for _, c := range chapters {
		ticks := Ticks(c.DurationSec)
		b.WriteString("\n[CHAPTER]\n")
		b.WriteString("TIMEBASE=1/1000\n")
		fmt.Fprintf(&b, "START=%d\n", playhead)
		fmt.Fprintf(&b, "END=%d\n", playhead+ticks)
		fmt.Fprintf(&b, "title=%s\n", Escape(c.Title))
		playhead += ticks + 1
	}
	return b.Bytes()
}

// Ticks 把秒换算为毫秒 ticks；负数、NaN 视为 0。
func Ticks(sec float64) int64 {
	if math.IsNaN(sec) || sec <= 0 {
		return 0
	}
	return int64(math.Floor(sec * 1000))
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`=`, `\=`,
	`;`, `\;`,
	`#`, `\#`,
	"\n", "\\\n",
)

// Escape 转义 FFMETADATA 值中的特殊字符；'\r' 直接去掉。
func Escape(s string) string {
	return escaper.Replace(strings.ReplaceAll(s, "\r", ""))
}
