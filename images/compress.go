// Package images приводит загруженные изображения к JPEG ограниченного размера.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	// Регистрируем декодеры форматов, которые принимаем от клиентов
	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	DefaultQuality = 70
	MIMEType       = "image/jpeg"
)

var ErrInvalidImage = errors.New("invalid image")

type Options struct {
	Quality int
	// MaxDimension ограничивает большую сторону изображения, 0 - без ресайза
	MaxDimension int
}

// Compress декодирует исходные байты и перекодирует их в JPEG с заданным качеством
func Compress(raw []byte, opts Options) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	if opts.MaxDimension > 0 {
		b := img.Bounds()
		if b.Dx() > opts.MaxDimension || b.Dy() > opts.MaxDimension {
			img = imaging.Fit(img, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeConfig возвращает размеры закодированного изображения
func DecodeConfig(data []byte) (image.Config, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return cfg, nil
}
