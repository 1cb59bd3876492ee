package main

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"
)

// JPEGQuality 输出 jpg 的质量
var JPEGQuality = 90

// normalizeFormat 统一格式标签, 不支持编码的格式返回错误
func normalizeFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimPrefix(format, ".")); f {
	case PNG, "":
		return PNG, nil
	case JPG, JPEG:
		return JPG, nil
	default:
		return "", configErrorf("unsupported tile format %q", format)
	}
}

// DecodeTile 解码瓦片数据, 支持 png/jpg/gif/webp
func DecodeTile(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode tile")
	}
	return img, nil
}

// EncodeTile 按格式编码瓦片
func EncodeTile(img image.Image, format string) ([]byte, error) {
	f, err := normalizeFormat(format)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(make([]byte, 0, 16000))
	switch f {
	case JPG:
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: JPEGQuality})
	default:
		err = png.Encode(buf, img)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s tile", f)
	}
	return buf.Bytes(), nil
}
