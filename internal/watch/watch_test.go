package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRun_DebouncesBurstIntoOneTrigger(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var count atomic.Int32
	fired := make(chan struct{}, 8)
	done := make(chan error, 1)
	w := Watcher{Dirs: []string{dir}, Debounce: 200 * time.Millisecond}
	go func() {
		done <- w.Run(ctx, func(context.Context) {
			count.Add(1)
			fired <- struct{}{}
		})
	}()

	// 等待监听建立。
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "nime2025_1.mp4"), []byte{byte(i)}, 0o644))
		time.Sleep(20 * time.Millisecond)
	}

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatalf("等待触发超时")
	}
	// 再等一个静默周期，确认没有额外触发。
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Run 未在 ctx 取消后退出")
	}
}

func TestRun_WatchesNewSubdirectories(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan struct{}, 8)
	done := make(chan error, 1)
	w := Watcher{Dirs: []string{dir}, Debounce: 100 * time.Millisecond}
	go func() {
		done <- w.Run(ctx, func(context.Context) { fired <- struct{}{} })
	}()
	time.Sleep(100 * time.Millisecond)

	sub := filepath.Join(dir, "late")
	require.NoError(t, os.Mkdir(sub, 0o755))
	<-fired // 目录创建本身触发一次

	require.NoError(t, os.WriteFile(filepath.Join(sub, "nime2025_2.mp4"), []byte("x"), 0o644))
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatalf("子目录中的写入没有触发")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestRun_InitialTriggerSeesChangesMadeWhileRunning(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var count atomic.Int32
	fired := make(chan struct{}, 8)
	done := make(chan error, 1)
	w := Watcher{Dirs: []string{dir}, Debounce: 100 * time.Millisecond, Initial: true}
	go func() {
		done <- w.Run(ctx, func(context.Context) {
			if count.Add(1) == 1 {
				// 首次渲染期间拷入新视频。
				_ = os.WriteFile(filepath.Join(dir, "nime2025_3.mp4"), []byte("x"), 0o644)
			}
			fired <- struct{}{}
		})
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-fired:
		case <-time.After(5 * time.Second):
			t.Fatalf("第 %d 次触发超时", i+1)
		}
	}
	assert.Equal(t, int32(2), count.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestRun_InitialStopsWhenCanceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	var count atomic.Int32
	w := Watcher{Dirs: []string{t.TempDir()}, Initial: true}
	err := w.Run(ctx, func(context.Context) {
		count.Add(1)
		cancel()
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), count.Load())
}

func TestRelevant(t *testing.T) {
	assert.True(t, relevant(fsnotify.Event{Name: "/in/nime2025_1.mp4", Op: fsnotify.Write}))
	assert.False(t, relevant(fsnotify.Event{Name: "/in/.nime2025_1.partial.mp4", Op: fsnotify.Create}))
	assert.False(t, relevant(fsnotify.Event{Name: "/in/nime2025_1.mp4", Op: fsnotify.Chmod}))
}

func TestRun_MissingDir(t *testing.T) {
	defer goleak.VerifyNone(t)
	err := Watcher{Dirs: []string{filepath.Join(t.TempDir(), "nope")}}.Run(context.Background(), func(context.Context) {})
	assert.Error(t, err)
}
