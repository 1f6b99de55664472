package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/John-Robertt/vstitch/internal/app/run"
	"github.com/John-Robertt/vstitch/internal/config"
	"github.com/John-Robertt/vstitch/internal/domain"
	"github.com/John-Robertt/vstitch/internal/publish"
	"github.com/John-Robertt/vstitch/internal/source"
)

// 默认列名：id,title,authors-names,session_code。
const cliCSV = `id,title,authors-names,session_code
1,First Talk,Ada,P1
2,Second Talk,Bob,P1
`

type stubRunner struct{}

func (stubRunner) Run(_ context.Context, _ string, args []string, _ io.Writer) ([]byte, error) {
	if n := len(args); n >= 2 && args[n-2] == "-y" {
		return nil, os.WriteFile(args[n-1], []byte("encoded"), 0o644)
	}
	return nil, nil
}

type stubProber struct{}

func (stubProber) Probe(_ context.Context, _ string) (domain.MediaInfo, error) {
	return domain.MediaInfo{DurationSec: 5, Width: 1920, Height: 1080, HasVideo: true}, nil
}

type memStore struct {
	objects map[string]minio.ObjectInfo
}

func (m *memStore) BucketExists(context.Context, string) (bool, error) { return true, nil }

func (m *memStore) MakeBucket(context.Context, string, minio.MakeBucketOptions) error { return nil }

func (m *memStore) StatObject(_ context.Context, _, object string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if info, ok := m.objects[object]; ok {
		return info, nil
	}
	return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
}

func (m *memStore) FPutObject(_ context.Context, _, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	fi, err := os.Stat(filePath)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	m.objects[object] = minio.ObjectInfo{Key: object, Size: fi.Size(), UserMetadata: opts.UserMetadata}
	return minio.UploadInfo{Key: object, Size: fi.Size()}, nil
}

func testEnv(t *testing.T, store *memStore) (*cliEnv, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	env := newEnv(&stdout, &stderr)
	env.getwd = func() (string, error) { return t.TempDir(), nil }
	env.deps = func(log *zap.Logger) run.Deps {
		return run.Deps{Sources: source.DefaultRegistry(), Runner: stubRunner{}, Prober: stubProber{}, Log: log}
	}
	env.newStore = func(config.Publish) (publish.ObjectStore, error) {
		if store == nil {
			return nil, errors.New("no store")
		}
		return store, nil
	}
	return env, &stdout, &stderr
}

func setupProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, d := range []string{"videos/inputs", "data"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatalf("创建目录失败：%v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "data", "data.csv"), []byte(cliCSV), 0o644); err != nil {
		t.Fatalf("写入数据表失败：%v", err)
	}
	for _, n := range []string{"nime2025_1.mp4", "nime2025_2.mp4"} {
		if err := os.WriteFile(filepath.Join(root, "videos", "inputs", n), []byte(n), 0o644); err != nil {
			t.Fatalf("写入视频失败：%v", err)
		}
	}
	return root
}

func TestCLI_NoTTY_StdoutOnlyRunReportJSON(t *testing.T) {
	root := setupProject(t)
	env, stdout, stderr := testEnv(t, nil)

	code := execute(context.Background(), []string{"render", root, "--dry-run"}, env)
	if code != 0 {
		t.Fatalf("退出码=%d\nstderr=%s", code, stderr.String())
	}

	dec := json.NewDecoder(bytes.NewReader(stdout.Bytes()))
	var rr domain.RunReport
	if err := dec.Decode(&rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout.String())
	}
	if dec.More() {
		t.Fatalf("stdout 只能包含一个 JSON：%q", stdout.String())
	}
	if !rr.DryRun || rr.Summary.Processed != 1 || len(rr.Items) != 1 || rr.Items[0].Chapters != 2 {
		t.Fatalf("report 不符合预期：%+v", rr)
	}
	if !strings.Contains(stderr.String(), "完成：processed=1") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr.String())
	}
	if _, err := os.Stat(filepath.Join(root, "videos", "tmp")); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应创建 videos/tmp：%v", err)
	}
}

func TestCLI_RenderThenPublish(t *testing.T) {
	root := setupProject(t)
	cfg := "publish:\n  endpoint: localhost:9000\n  bucket: nime\n  prefix: sessions\n"
	if err := os.WriteFile(filepath.Join(root, config.FileName), []byte(cfg), 0o644); err != nil {
		t.Fatalf("写入配置失败：%v", err)
	}
	store := &memStore{objects: map[string]minio.ObjectInfo{}}
	env, stdout, stderr := testEnv(t, store)

	code := execute(context.Background(), []string{"render", root, "--publish", "--concurrency", "1"}, env)
	if code != 0 {
		t.Fatalf("退出码=%d\nstderr=%s", code, stderr.String())
	}
	if _, ok := store.objects["sessions/video_P1.mp4"]; !ok {
		t.Fatalf("期望上传 video_P1.mp4：%v", store.objects)
	}
	if _, err := os.Stat(filepath.Join(root, "videos", "tmp", "report.json")); err != nil {
		t.Fatalf("期望写出 report.json：%v", err)
	}
	var rr domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("--publish 时 stdout 仍只输出 RunReport：%v", err)
	}

	// 再次 publish：对象已是最新，全部 skipped。
	env2, stdout2, stderr2 := testEnv(t, store)
	if code := execute(context.Background(), []string{"publish", root}, env2); code != 0 {
		t.Fatalf("publish 退出码=%d\nstderr=%s", code, stderr2.String())
	}
	var rep publish.Report
	if err := json.Unmarshal(stdout2.Bytes(), &rep); err != nil {
		t.Fatalf("publish stdout 不是 JSON：%v", err)
	}
	if len(rep.Items) != 1 || rep.Items[0].Status != publish.StatusSkipped {
		t.Fatalf("第二次 publish 应 skipped：%+v", rep.Items)
	}
}

func TestCLI_ConfigNotFound(t *testing.T) {
	root := setupProject(t)
	env, stdout, _ := testEnv(t, nil)

	code := execute(context.Background(), []string{"render", root, "--config", "missing.yaml"}, env)
	if code != 1 {
		t.Fatalf("期望退出码 1，实际 %d", code)
	}
	var rr domain.RunReport
	if err := json.Unmarshal(stdout.Bytes(), &rr); err != nil {
		t.Fatalf("配置错误时 stdout 也应是 RunReport：%v", err)
	}
	if len(rr.Items) != 1 || rr.Items[0].ErrorCode != config.ErrCodeNotFound {
		t.Fatalf("期望 config_not_found：%+v", rr.Items)
	}
}

func TestCLI_UsageErrors(t *testing.T) {
	cases := [][]string{
		{"bogus"},
		{"render", "a", "b"},
		{"render", "--concurrency", "x"},
		{"render", "--no-such-flag"},
	}
	for _, args := range cases {
		env, _, stderr := testEnv(t, nil)
		if code := execute(context.Background(), args, env); code != 2 {
			t.Fatalf("%v：期望退出码 2，实际 %d", args, code)
		}
		if !strings.Contains(stderr.String(), "参数错误") {
			t.Fatalf("%v：stderr 应包含参数错误：%q", args, stderr.String())
		}
	}
}

func TestCLI_PublishWithDryRunIsUsageError(t *testing.T) {
	root := setupProject(t)
	env, _, _ := testEnv(t, nil)
	if code := execute(context.Background(), []string{"render", root, "--dry-run", "--publish"}, env); code != 2 {
		t.Fatalf("期望退出码 2，实际 %d", code)
	}
}

func TestCLI_InitIsIdempotent(t *testing.T) {
	root := filepath.Join(t.TempDir(), "conf")
	env, stdout, stderr := testEnv(t, nil)

	if code := execute(context.Background(), []string{"init", root}, env); code != 0 {
		t.Fatalf("init 退出码=%d stderr=%s", code, stderr.String())
	}
	for _, d := range []string{"videos/inputs", "videos/tmp", "videos/output", "data"} {
		fi, err := os.Stat(filepath.Join(root, d))
		if err != nil || !fi.IsDir() {
			t.Fatalf("期望创建目录 %s：%v", d, err)
		}
	}
	cfgPath := filepath.Join(root, config.FileName)
	b, err := os.ReadFile(cfgPath)
	if err != nil || string(b) != config.SampleYAML {
		t.Fatalf("期望写出示例配置：%v", err)
	}
	if !strings.Contains(stdout.String(), "示例") {
		t.Fatalf("stdout 应提示写出示例配置：%q", stdout.String())
	}

	if err := os.WriteFile(cfgPath, []byte("concurrency: 4\n"), 0o644); err != nil {
		t.Fatalf("改写配置失败：%v", err)
	}
	env2, stdout2, _ := testEnv(t, nil)
	if code := execute(context.Background(), []string{"init", root}, env2); code != 0 {
		t.Fatalf("第二次 init 退出码=%d", code)
	}
	b, _ = os.ReadFile(cfgPath)
	if string(b) != "concurrency: 4\n" {
		t.Fatalf("init 不应覆盖已有配置：%q", b)
	}
	if !strings.Contains(stdout2.String(), "已存在") {
		t.Fatalf("stdout 应提示配置已存在：%q", stdout2.String())
	}
}

func TestNextWatchConfig(t *testing.T) {
	prev := config.EffectiveConfig{Concurrency: 2}

	next := config.EffectiveConfig{Concurrency: 4}
	if got, reason := nextWatchConfig(prev, next, nil); got.Concurrency != 4 || reason != "" {
		t.Fatalf("正常重新读取应使用新配置：%+v %q", got, reason)
	}

	dry := config.EffectiveConfig{Concurrency: 4, DryRun: true}
	if got, reason := nextWatchConfig(prev, dry, nil); got.DryRun || got.Concurrency != 2 || reason == "" {
		t.Fatalf("配置改成 dry-run 时应沿用上一次配置：%+v %q", got, reason)
	}

	if got, reason := nextWatchConfig(prev, config.EffectiveConfig{}, errors.New("bad yaml")); got.Concurrency != 2 || reason == "" {
		t.Fatalf("读取失败时应沿用上一次配置：%+v %q", got, reason)
	}
}
