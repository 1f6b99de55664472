package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteFileAtomic_ReplaceAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFileAtomic(dir, "report.json", []byte("v1")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFileAtomic(dir, "report.json", []byte("v2")); err != nil {
		t.Fatalf("覆盖写入不期望错误：%v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "report.json"))
	if err != nil {
		t.Fatalf("读取文件失败：%v", err)
	}
	if string(b) != "v2" {
		t.Fatalf("内容不一致：%q", string(b))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".report.json.tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}

func TestWriteFileAtomic_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	if err := WriteFileAtomic(dir, "a.txt", []byte("hello")); err == nil {
		t.Fatalf("期望失败，但得到 nil")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rename 失败后目录应为空，实际：%v", entries)
	}
}

func TestWriteFileAtomicNoOverwrite(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFileAtomicNoOverwrite(dir, "vstitch.yaml", []byte("a")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	err := WriteFileAtomicNoOverwrite(dir, "vstitch.yaml", []byte("b"))
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("期望 os.ErrExist，实际：%v", err)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "vstitch.yaml"))
	if string(b) != "a" {
		t.Fatalf("已有文件不应被覆盖：%q", string(b))
	}

	if err := os.Mkdir(filepath.Join(dir, "d"), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := WriteFileAtomicNoOverwrite(dir, "d", []byte("x")); !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
}

func TestMoveIntoPlace_ReplacesFileRejectsDir(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "new.mp4")
	dst := filepath.Join(dir, "out.mp4")
	write(t, src, "new")
	write(t, dst, "old")

	if err := MoveIntoPlace(src, dst); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, _ := os.ReadFile(dst)
	if string(b) != "new" {
		t.Fatalf("dst 应被替换：%q", string(b))
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("src 应已移走：%v", err)
	}

	src2 := filepath.Join(dir, "x.mp4")
	write(t, src2, "x")
	dirDst := filepath.Join(dir, "isdir")
	if err := os.Mkdir(dirDst, 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := MoveIntoPlace(src2, dirDst); !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
}

func TestPartialPath_KeepsExt(t *testing.T) {
	got := PartialPath(filepath.Join("a", "b", "video_P1.mp4"))
	want := filepath.Join("a", "b", ".video_P1.partial.mp4")
	if got != want {
		t.Fatalf("got=%q want=%q", got, want)
	}
}

func TestModTime(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.mp4")

	if _, ok, err := ModTime(p); ok || err != nil {
		t.Fatalf("不存在的文件应返回 ok=false err=nil，实际 ok=%v err=%v", ok, err)
	}
	write(t, p, "x")
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(p, ts, ts); err != nil {
		t.Fatalf("Chtimes 失败：%v", err)
	}
	got, ok, err := ModTime(p)
	if err != nil || !ok || !got.Equal(ts) {
		t.Fatalf("ModTime 不符合预期：%v %v %v", got, ok, err)
	}
}

func write(t *testing.T, path, s string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
