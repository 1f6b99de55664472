// Package publish 把渲染好的 session 视频与缩略图上传到 S3 兼容存储（MinIO）。
package publish

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/John-Robertt/vstitch/internal/config"
)

const (
	StatusUploaded = "uploaded"
	StatusSkipped  = "skipped"
	StatusFailed   = "failed"
)

// mtimeMetaKey 记录本地文件 mtime（Unix 秒），用于判断对象是否已是最新。
const mtimeMetaKey = "Source-Mtime"

// ObjectStore 是发布所需的最小对象存储接口（*minio.Client 满足该接口）。
type ObjectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewClient 按配置创建 MinIO 客户端；未配置 endpoint 时返回错误。
func NewClient(p config.Publish) (*minio.Client, error) {
	if !p.Enabled() {
		return nil, errors.New("未配置 publish.endpoint（或 MINIO_ENDPOINT）")
	}
	c, err := minio.New(p.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(p.AccessKey, p.SecretKey, ""),
		Secure: p.UseSSL,
		Region: p.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败：%w", err)
	}
	return c, nil
}

// Result 是单个文件的上传结果。
type Result struct {
	File     string `json:"file"`
	Key      string `json:"key"`
	Status   string `json:"status"`
	ErrorMsg string `json:"error_msg,omitempty"`
}

// Report 是一次发布的结果（稳定排序：按 Key）。
type Report struct {
	Bucket string   `json:"bucket"`
	Items  []Result `json:"items"`
}

// Failed 返回失败的条目数量。
func (r Report) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Publisher 负责确保 bucket 存在并逐个上传文件。
type Publisher struct {
	Store  ObjectStore
	Bucket string
	Region string
	Prefix string
	Log    *zap.Logger
}

// New 由配置构造 Publisher。
func New(store ObjectStore, p config.Publish, log *zap.Logger) Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return Publisher{Store: store, Bucket: p.Bucket, Region: p.Region, Prefix: p.Prefix, Log: log}
}

// Key 返回文件对应的对象名：<prefix>/<文件名>。
func (p Publisher) Key(file string) string {
	name := filepath.Base(file)
	if p.Prefix == "" {
		return name
	}
	return path.Join(p.Prefix, name)
}

// Publish 上传 files。单个文件失败不影响其它文件；只有 bucket 不可用时返回 error。
func (p Publisher) Publish(ctx context.Context, files []string) (Report, error) {
	rep := Report{Bucket: p.Bucket}
	if err := p.ensureBucket(ctx); err != nil {
		return rep, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		res := p.publishOne(ctx, f)
		if res.Status == StatusFailed {
			p.Log.Warn("上传失败", zap.String("file", f), zap.String("error", res.ErrorMsg))
		} else {
			p.Log.Info("发布", zap.String("key", res.Key), zap.String("status", res.Status))
		}
		rep.Items = append(rep.Items, res)
	}
	sort.Slice(rep.Items, func(i, j int) bool { return rep.Items[i].Key < rep.Items[j].Key })
	return rep, nil
}

func (p Publisher) ensureBucket(ctx context.Context) error {
	ok, err := p.Store.BucketExists(ctx, p.Bucket)
	if err != nil {
		return fmt.Errorf("检查 bucket %q 失败：%w", p.Bucket, err)
	}
	if ok {
		return nil
	}
	if err := p.Store.MakeBucket(ctx, p.Bucket, minio.MakeBucketOptions{Region: p.Region}); err != nil {
		return fmt.Errorf("创建 bucket %q 失败：%w", p.Bucket, err)
	}
	p.Log.Info("已创建 bucket", zap.String("bucket", p.Bucket))
	return nil
}

func (p Publisher) publishOne(ctx context.Context, file string) Result {
	res := Result{File: file, Key: p.Key(file)}
	fi, err := os.Stat(file)
	if err != nil {
		res.Status, res.ErrorMsg = StatusFailed, err.Error()
		return res
	}
	mtime := strconv.FormatInt(fi.ModTime().Unix(), 10)

	info, err := p.Store.StatObject(ctx, p.Bucket, res.Key, minio.StatObjectOptions{})
	switch {
	case err == nil:
		if info.Size == fi.Size() && metaValue(info, mtimeMetaKey) == mtime {
			res.Status = StatusSkipped
			return res
		}
	case minio.ToErrorResponse(err).Code == "NoSuchKey":
	default:
		res.Status, res.ErrorMsg = StatusFailed, err.Error()
		return res
	}

	_, err = p.Store.FPutObject(ctx, p.Bucket, res.Key, file, minio.PutObjectOptions{
		ContentType:  ContentType(file),
		UserMetadata: map[string]string{mtimeMetaKey: mtime},
	})
	if err != nil {
		res.Status, res.ErrorMsg = StatusFailed, err.Error()
		return res
	}
	res.Status = StatusUploaded
	return res
}

// metaValue 读取用户元数据；不同服务端返回的 key 大小写不一致。
func metaValue(info minio.ObjectInfo, key string) string {
	for k, v := range info.UserMetadata {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return info.Metadata.Get("X-Amz-Meta-" + key)
}

// ContentType 按扩展名返回上传时使用的 Content-Type。
func ContentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".mp4":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".mov":
		return "video/quicktime"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// Files 列出 outputDir 下待发布的文件：<outputPrefix>*<outputExt> 与同名缩略图 .jpg。
// 隐藏文件（包括未完成的 .partial）被忽略；结果按文件名排序。
func Files(outputDir, outputPrefix, outputExt string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasPrefix(name, outputPrefix) {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext == strings.ToLower(outputExt) || ext == ".jpg" {
			out = append(out, filepath.Join(outputDir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}
