package run

import (
	"time"

	"github.com/John-Robertt/vstitch/internal/config"
	"github.com/John-Robertt/vstitch/internal/domain"
)

// Observer 把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：事件可能来自多个 goroutine。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束/就绪时调用（data/scan/group/plan/exec）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnSessionStart 在 worker 开始处理某个 session 时调用。
	OnSessionStart(name string, clips int)
	// OnItemDone 在某个 session 处理完成时调用（用于每条结果的一行输出）。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
	// OnProgress 用于 keepalive（通常由 CLI 自己 ticker 触发；run 层不强制调用）。
	OnProgress(done, total, ok, fail, skip, active int, activeSessions []string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig)                                   {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration)                {}
func (nopObserver) OnSessionStart(string, int)                                       {}
func (nopObserver) OnItemDone(int, int, domain.ItemResult, time.Duration)            {}
func (nopObserver) OnProgress(int, int, int, int, int, int, []string, time.Duration) {}
