package publish

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/vstitch/internal/config"
)

type fakeStore struct {
	bucketExists bool
	made         []string
	objects      map[string]minio.ObjectInfo
	puts         []string
	statErr      error
}

func (f *fakeStore) BucketExists(_ context.Context, _ string) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeStore) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.made = append(f.made, bucket)
	f.bucketExists = true
	return nil
}

func (f *fakeStore) StatObject(_ context.Context, _, object string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if f.statErr != nil {
		return minio.ObjectInfo{}, f.statErr
	}
	if info, ok := f.objects[object]; ok {
		return info, nil
	}
	return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}
}

func (f *fakeStore) FPutObject(_ context.Context, _, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	fi, err := os.Stat(filePath)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.puts = append(f.puts, object)
	f.objects[object] = minio.ObjectInfo{Key: object, Size: fi.Size(), UserMetadata: opts.UserMetadata}
	return minio.UploadInfo{Key: object, Size: fi.Size()}, nil
}

func writeOutputs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range []string{"video_P1.mp4", "video_P1.jpg", "video_P2.mp4", ".video_P3.partial.mp4", "notes.txt", "other.mp4"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte(n), 0o644))
	}
	return dir
}

func TestFiles(t *testing.T) {
	dir := writeOutputs(t)
	files, err := Files(dir, "video_", ".mp4")
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.Equal(t, []string{"video_P1.jpg", "video_P1.mp4", "video_P2.mp4"}, names)
}

func TestPublish_CreatesBucketUploadsThenSkips(t *testing.T) {
	dir := writeOutputs(t)
	files, err := Files(dir, "video_", ".mp4")
	require.NoError(t, err)

	store := &fakeStore{objects: map[string]minio.ObjectInfo{}}
	p := New(store, config.Publish{Bucket: "nime", Prefix: "sessions"}, nil)

	rep, err := p.Publish(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, []string{"nime"}, store.made)
	assert.Equal(t, 0, rep.Failed())
	for _, it := range rep.Items {
		assert.Equal(t, StatusUploaded, it.Status, it.Key)
	}
	assert.Equal(t, "sessions/video_P1.jpg", rep.Items[0].Key)

	// 第二次：对象大小与 mtime 元数据都一致，全部跳过。
	rep, err = p.Publish(context.Background(), files)
	require.NoError(t, err)
	for _, it := range rep.Items {
		assert.Equal(t, StatusSkipped, it.Status, it.Key)
	}
	assert.Len(t, store.puts, 3)
}

func TestPublish_ReuploadsWhenMtimeDiffers(t *testing.T) {
	dir := writeOutputs(t)
	f := filepath.Join(dir, "video_P2.mp4")
	fi, err := os.Stat(f)
	require.NoError(t, err)

	store := &fakeStore{bucketExists: true, objects: map[string]minio.ObjectInfo{
		"video_P2.mp4": {Size: fi.Size(), UserMetadata: map[string]string{"Source-Mtime": strconv.FormatInt(fi.ModTime().Unix()-60, 10)}},
	}}
	p := New(store, config.Publish{Bucket: "nime"}, nil)

	rep, err := p.Publish(context.Background(), []string{f})
	require.NoError(t, err)
	assert.Equal(t, StatusUploaded, rep.Items[0].Status)
	assert.Empty(t, store.made)
}

func TestPublish_StatErrorIsPerFile(t *testing.T) {
	dir := writeOutputs(t)
	store := &fakeStore{bucketExists: true, objects: map[string]minio.ObjectInfo{}, statErr: errors.New("connection reset")}
	p := New(store, config.Publish{Bucket: "nime"}, nil)

	rep, err := p.Publish(context.Background(), []string{filepath.Join(dir, "video_P1.mp4"), filepath.Join(dir, "missing.mp4")})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Failed())
}

func TestNewClient_Disabled(t *testing.T) {
	_, err := NewClient(config.Publish{})
	assert.Error(t, err)
}

func TestNewClient_Enabled(t *testing.T) {
	c, err := NewClient(config.Publish{Endpoint: "127.0.0.1:9000", Bucket: "b", AccessKey: "a", SecretKey: "s"})
	require.NoError(t, err)
	assert.NotNil(t, c)
	var _ ObjectStore = c
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "video/mp4", ContentType("a.MP4"))
	assert.Equal(t, "image/jpeg", ContentType("a.jpg"))
	assert.Equal(t, "video/x-matroska", ContentType("a.mkv"))
}
