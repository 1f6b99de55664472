package imgx

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	_ "image/png" // ffmpeg 截帧输出 PNG

	xdraw "golang.org/x/image/draw"
)

// ThumbnailJPEG 把截帧图片等比缩放到宽度不超过 maxWidth，并编码为 JPEG。
//
// 约束：
// - 输入允许是 JPEG/PNG
// - 输出固定为 JPEG
// - 原图不宽于 maxWidth 时不放大；maxWidth <= 0 表示不缩放
func ThumbnailJPEG(frame []byte, maxWidth int) ([]byte, error) {
	if len(frame) == 0 {
		return nil, errors.New("截帧为空")
	}

	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}

	w, h := b.Dx(), b.Dy()
	if maxWidth > 0 && w > maxWidth {
		h = h * maxWidth / w
		if h < 1 {
			h = 1
		}
		w = maxWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
