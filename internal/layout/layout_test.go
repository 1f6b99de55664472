package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/vstitch/internal/infra/fsx"
)

func TestEnsure_CreatesAllDirsIdempotent(t *testing.T) {
	root := t.TempDir()
	p := For(root)

	for i := 0; i < 2; i++ {
		if err := p.Ensure(); err != nil {
			t.Fatalf("第 %d 次 Ensure 失败：%v", i+1, err)
		}
	}
	for _, d := range []string{"videos/inputs", "videos/tmp", "videos/output", "data"} {
		fi, err := os.Stat(filepath.Join(root, filepath.FromSlash(d)))
		if err != nil || !fi.IsDir() {
			t.Fatalf("期望目录 %s 存在：err=%v", d, err)
		}
	}
}

func TestEnsure_FileInTheWay(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "data"), []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
	err := For(root).Ensure()
	if !fsx.IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
}
