// Package storage provides the default implementations of the external
// collaborators the session consumes for attachments: pre-upload image
// compression and object-store upload.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

var (
	ErrTooLarge     = errors.New("file too large")
	ErrInvalidImage = errors.New("invalid image")
	ErrUnsupported  = errors.New("unsupported image type")
)

type CompressOptions struct {
	MaxBytes    int64
	MaxDim      int
	JPEGQuality int
}

// DefaultCompressOptions suit chat attachments: bounded dimensions, visibly
// lossless quality.
func DefaultCompressOptions() CompressOptions {
	return CompressOptions{
		MaxBytes:    25 * 1024 * 1024,
		MaxDim:      1600,
		JPEGQuality: 80,
	}
}

// detectImageMagic identifies the allowed source formats by magic number.
func detectImageMagic(header []byte) (string, error) {
	if len(header) < 12 {
		return "", ErrInvalidImage
	}
	if header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF {
		return "image/jpeg", nil
	}
	if bytes.HasPrefix(header, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}) {
		return "image/png", nil
	}
	if bytes.HasPrefix(header, []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")) {
		return "image/webp", nil
	}
	return "", ErrUnsupported
}

// CompressImage decodes an attachment image, downscales it to fit within
// MaxDim (never upscaling), and re-encodes it as JPEG flattened onto white.
// Returns the encoded bytes and the output content type.
func CompressImage(r io.Reader, opts CompressOptions) ([]byte, string, error) {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 25 * 1024 * 1024
	}
	if opts.MaxDim <= 0 {
		opts.MaxDim = 1600
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 80
	}

	data, err := io.ReadAll(io.LimitReader(r, opts.MaxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > opts.MaxBytes {
		return nil, "", ErrTooLarge
	}
	if len(data) < 12 {
		return nil, "", ErrInvalidImage
	}

	srcType, err := detectImageMagic(data[:12])
	if err != nil {
		return nil, "", err
	}

	var img image.Image
	switch srcType {
	case "image/jpeg":
		img, err = jpeg.Decode(bytes.NewReader(data))
	case "image/png":
		img, err = png.Decode(bytes.NewReader(data))
	case "image/webp":
		img, err = webp.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, "", fmt.Errorf("decode: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, "", ErrInvalidImage
	}

	tw, th := fitWithin(w, h, opts.MaxDim)
	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	bg := image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255})
	draw.Draw(dst, dst.Bounds(), bg, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
		return nil, "", fmt.Errorf("encode: %w", err)
	}
	return out.Bytes(), "image/jpeg", nil
}

// fitWithin scales (w, h) to fit inside maxDim preserving aspect ratio,
// never upscaling.
func fitWithin(w, h, maxDim int) (int, int) {
	if w <= maxDim && h <= maxDim {
		return w, h
	}
	tw, th := w, h
	if w >= h {
		tw = maxDim
		th = int(float64(h) * (float64(maxDim) / float64(w)))
	} else {
		th = maxDim
		tw = int(float64(w) * (float64(maxDim) / float64(h)))
	}
	if tw < 1 {
		tw = 1
	}
	if th < 1 {
		th = 1
	}
	return tw, th
}
