package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/vstitch/internal/domain"
)

func TestStore_ReadWriteProbe(t *testing.T) {
	dir := t.TempDir()
	mod := time.Date(2025, 6, 1, 12, 0, 0, 123, time.UTC)

	s := New(dir, false)
	in := ProbeEntry{SrcSize: 42, SrcModUnixNano: mod.UnixNano(), SrcDurationSec: 12.5, Fingerprint: "abc"}
	if err := s.WriteProbe("nime2025_1", in); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	got, ok, err := s.ReadProbe("nime2025_1")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ok {
		t.Fatalf("期望命中缓存，但 ok=false")
	}
	if !got.MatchesSource(42, mod) {
		t.Fatalf("期望源文件匹配：%+v", got)
	}
	if got.MatchesSource(43, mod) || got.MatchesSource(42, mod.Add(time.Second)) {
		t.Fatalf("size/mtime 变化后不应匹配")
	}
	if got.SrcDurationSec != 12.5 || got.Fingerprint != "abc" {
		t.Fatalf("内容不一致：%+v", got)
	}

	path, _ := s.ProbePath("nime2025_1")
	if path != filepath.Join(dir, "probe", "nime2025_1.json") {
		t.Fatalf("路径不符合预期：%q", path)
	}
}

func TestStore_ReadOnlyRejectWrite(t *testing.T) {
	dir := t.TempDir()

	s := New(dir, true)
	err := s.WriteProbe("x", ProbeEntry{})
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}
	path, _ := s.ProbePath("x")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("只读模式不应写入文件")
	}
}

func TestStore_CorruptIsMiss(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, false)
	path, _ := s.ProbePath("bad")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, ok, err := s.ReadProbe("bad")
	if err != nil || ok {
		t.Fatalf("损坏的缓存应视为未命中，实际 ok=%v err=%v", ok, err)
	}
}

func TestStore_RejectTraversal(t *testing.T) {
	s := New(t.TempDir(), false)
	for _, b := range []string{"", "..", "a/b", `a\b`} {
		if _, err := s.ProbePath(b); err == nil {
			t.Fatalf("期望拒绝 base=%q", b)
		}
	}
}

func TestWithSource_RoundTripsInfo(t *testing.T) {
	mod := time.Unix(1700000000, 0)
	info := domain.MediaInfo{DurationSec: 61.2, Width: 1280, Height: 720, HasVideo: true, HasAudio: true}

	e := WithSource(99, mod, info)
	if !e.MatchesSource(99, mod) {
		t.Fatalf("期望源文件匹配")
	}
	if e.SrcInfo() != info {
		t.Fatalf("SrcInfo 不一致：%+v", e.SrcInfo())
	}
	if e.Fingerprint != "" {
		t.Fatalf("新条目不应带指纹")
	}
}

func TestProbeEntry_MatchesProcessed(t *testing.T) {
	mod := time.Unix(1700000000, 5)
	e := ProbeEntry{Fingerprint: "f", ProcessedModUnixNano: mod.UnixNano()}
	if !e.MatchesProcessed(mod) {
		t.Fatalf("期望匹配")
	}
	if (ProbeEntry{ProcessedModUnixNano: mod.UnixNano()}).MatchesProcessed(mod) {
		t.Fatalf("空指纹不应匹配")
	}
}
