// Package watch 监听输入目录与数据目录的变化，并在变化平息后触发一次重新渲染。
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce 是最后一次事件之后到触发之间的静默时间（大文件拷贝期间会持续产生写事件）。
const DefaultDebounce = 3 * time.Second

// Watcher 递归监听 Dirs（新建的子目录会自动加入）。
type Watcher struct {
	Dirs     []string
	Debounce time.Duration
	Log      *zap.Logger

	// Initial 为 true 时，监听建立后立即触发一次 trigger；
	// 该次执行期间的变化已被监听，返回后照常计时触发。
	Initial bool
}

// Run 阻塞直到 ctx 取消。每批相关事件在静默 Debounce 后调用一次 trigger；
// trigger 串行执行，执行期间到达的事件会在其返回后重新计时。
func (w Watcher) Run(ctx context.Context, trigger func(context.Context)) error {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	for _, d := range w.Dirs {
		if err := addRecursive(fw, d); err != nil {
			return err
		}
		log.Info("监听目录", zap.String("dir", d))
	}

	if w.Initial {
		trigger(ctx)
		if ctx.Err() != nil {
			return nil
		}
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := addRecursive(fw, ev.Name); err != nil {
						log.Warn("无法监听新目录", zap.String("dir", ev.Name), zap.Error(err))
					}
				}
			}
			log.Debug("文件变化", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(debounce)
			pending = true

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("监听出错", zap.Error(err))

		case <-timer.C:
			pending = false
			trigger(ctx)
		}
	}
}

// relevant 忽略隐藏文件（包括我们自己写出的临时文件）与纯权限变化。
func relevant(ev fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	return ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) ||
		ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename)
}

func addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
