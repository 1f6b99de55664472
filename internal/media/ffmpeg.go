package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/John-Robertt/vstitch/internal/domain"
	"github.com/John-Robertt/vstitch/internal/infra/fsx"
)

const (
	StageLoudness  = "loudness"
	StageEncode    = "encode"
	StageConcat    = "concat"
	StageThumbnail = "thumbnail"
)

// StageError 标记 ffmpeg 流水线中失败的阶段，便于上层映射为 error_code。
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + "：" + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// Stage 提取失败阶段；不是 *StageError 时返回空串。
func Stage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// FFmpeg 把参数构造与进程执行组合成三个动作：预处理、拼接、截帧。
type FFmpeg struct {
	Bin    string
	Runner Runner
	Log    *zap.Logger
}

func (f FFmpeg) bin() string {
	if f.Bin == "" {
		return "ffmpeg"
	}
	return f.Bin
}

func (f FFmpeg) logger() *zap.Logger {
	if f.Log == nil {
		return zap.NewNop()
	}
	return f.Log
}

func (f FFmpeg) run(ctx context.Context, args []string, stdout io.Writer) ([]byte, error) {
	f.logger().Debug("ffmpeg", zap.Strings("args", args))
	return f.Runner.Run(ctx, f.bin(), args, stdout)
}

// MeasureLoudness 执行 loudnorm 第一遍测量。
func (f FFmpeg) MeasureLoudness(ctx context.Context, in string, rs domain.RenderSettings) (domain.Loudness, error) {
	stderr, err := f.run(ctx, LoudnessArgs(in, rs), nil)
	if err != nil {
		return domain.Loudness{}, &StageError{Stage: StageLoudness, Err: err}
	}
	l, err := ParseLoudness(stderr)
	if err != nil {
		return domain.Loudness{}, &StageError{Stage: StageLoudness, Err: err}
	}
	if l.Silent {
		f.logger().Warn("输入为静音，跳过响度增益", zap.String("file", in))
	}
	return l, nil
}

// Process 把 in 重编码为 out：先写同目录隐藏临时文件，成功后再落位。
func (f FFmpeg) Process(ctx context.Context, in, out, title string, info domain.MediaInfo, rs domain.RenderSettings) error {
	var loud domain.Loudness
	if info.HasAudio {
		var err error
		loud, err = f.MeasureLoudness(ctx, in, rs)
		if err != nil {
			return err
		}
	}

	partial := fsx.PartialPath(out)
	defer os.Remove(partial)

	if _, err := f.run(ctx, ProcessArgs(in, partial, title, rs, loud, info.HasAudio), nil); err != nil {
		return &StageError{Stage: StageEncode, Err: err}
	}
	if err := fsx.MoveIntoPlace(partial, out); err != nil {
		return &StageError{Stage: StageEncode, Err: fmt.Errorf("落位失败：%w", err)}
	}
	return nil
}

// Concat 把已处理的 clip 按顺序拼接为 out，并写入 metadata 中的章节。
func (f FFmpeg) Concat(ctx context.Context, inputs []string, metadata, out string) error {
	if len(inputs) == 0 {
		return &StageError{Stage: StageConcat, Err: errors.New("没有可拼接的输入")}
	}
	if _, err := f.run(ctx, ConcatArgs(inputs, metadata, out), nil); err != nil {
		return &StageError{Stage: StageConcat, Err: err}
	}
	return nil
}

// Thumbnail 截取 in 第 1 秒的一帧（PNG 字节）。
func (f FFmpeg) Thumbnail(ctx context.Context, in string) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := f.run(ctx, ThumbnailArgs(in), &buf); err != nil {
		return nil, &StageError{Stage: StageThumbnail, Err: err}
	}
	if buf.Len() == 0 {
		return nil, &StageError{Stage: StageThumbnail, Err: errors.New("ffmpeg 没有输出任何帧")}
	}
	return buf.Bytes(), nil
}
