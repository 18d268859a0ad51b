// Package avatar はアップロードされたアバター画像を検証し、固定サイズのPNGに変換する。
package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	// JPEGはデコード用に副作用インポートする。
	_ "image/jpeg"

	"golang.org/x/image/draw"
)

const (
	// Size は変換後のアバター画像の幅・高さ（ピクセル）。
	Size = 250
	// MaxBytes はアップロード可能なファイルの最大サイズ（8MiB）。
	MaxBytes int64 = 8 << 20
	// MaxPixels はデコードを許可する元画像の最大画素数（幅×高さ）。
	// デコーダーはヘッダーの寸法で画素バッファを確保するため、ファイルサイズとは別に制限する。
	MaxPixels = 40_000_000
)

var (
	// ErrUnsupportedType は拡張子が jpg/jpeg/png 以外であることを表す。
	ErrUnsupportedType = errors.New("Allowed file types: jpg, jpeg, png")
	// ErrTooLarge はファイルサイズが MaxBytes を超えていることを表す。
	ErrTooLarge = errors.New("File too large")
	// ErrTooManyPixels は画像の寸法が MaxPixels を超えていることを表す。
	ErrTooManyPixels = errors.New("Image dimensions too large")
	// ErrUndecodable は画像としてデコードできないことを表す。
	ErrUndecodable = errors.New("Unable to decode image")
)

// allowedExtensions はアップロードを許可する拡張子。
var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// CheckFilename はファイル名の拡張子を検証する。大文字小文字は区別しない。
func CheckFilename(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := allowedExtensions[ext]; !ok {
		return ErrUnsupportedType
	}
	return nil
}

// Transcode は画像を読み込み、Size×Size のPNGにエンコードして返す。
// 元画像は縦横比を維持して全面を覆うように拡大縮小し、はみ出した部分を中央で切り取る。
func Transcode(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, MaxBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("画像の読み込みに失敗: %w", err)
	}
	if int64(len(data)) > MaxBytes {
		return nil, ErrTooLarge
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooManyPixels, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, Size, Size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, coverRect(src.Bounds(), Size, Size), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("PNGエンコードに失敗: %w", err)
	}
	return buf.Bytes(), nil
}

// coverRect は出力サイズの縦横比に合わせて、元画像の中央から切り出す範囲を返す。
func coverRect(src image.Rectangle, width, height int) image.Rectangle {
	srcW, srcH := src.Dx(), src.Dy()
	if srcW == 0 || srcH == 0 {
		return src
	}

	// srcW/srcH と width/height の比較を整数で行う
	if srcW*height > srcH*width {
		// 横長: 左右を切り取る
		cropW := srcH * width / height
		x0 := src.Min.X + (srcW-cropW)/2
		return image.Rect(x0, src.Min.Y, x0+cropW, src.Max.Y)
	}
	// 縦長: 上下を切り取る
	cropH := srcW * height / width
	y0 := src.Min.Y + (srcH-cropH)/2
	return image.Rect(src.Min.X, y0, src.Max.X, y0+cropH)
}
