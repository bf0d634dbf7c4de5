package imaging

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

const (
	DefaultMaxDimension = 1600
	DefaultQuality      = 80
	// DefaultMaxPixels bounds the decoded size of a cover; larger images are uploaded as is.
	DefaultMaxPixels = 40_000_000
)

type encoder struct {
	name        string
	contentType string
	ext         string
	encode      func(w io.Writer, img image.Image, quality int) error
}

func webpEncoder() encoder {
	return encoder{
		name:        "webp",
		contentType: "image/webp",
		ext:         ".webp",
		encode: func(w io.Writer, img image.Image, quality int) error {
			return webp.Encode(w, img, webp.Options{Quality: quality})
		},
	}
}

func jpegEncoder() encoder {
	return encoder{
		name:        "jpeg",
		contentType: "image/jpeg",
		ext:         ".jpg",
		encode: func(w io.Writer, img image.Image, quality int) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
		},
	}
}

// Compressor downsizes cover images and re-encodes them as lossy WebP, or JPEG when the
// WebP encoder fails. It is stateless and safe for concurrent use.
type Compressor struct {
	maxDimension int
	quality      int
	maxPixels    int
	encoders     []encoder
}

func NewCompressor(maxDimension, quality int) *Compressor {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &Compressor{
		maxDimension: maxDimension,
		quality:      quality,
		maxPixels:    DefaultMaxPixels,
		encoders:     []encoder{webpEncoder(), jpegEncoder()},
	}
}

// Compress never fails: any decode or encode problem yields the input unchanged.
func (c *Compressor) Compress(file domain.File) (out domain.File) {
	if file.Empty() {
		return file
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("cover_compress_panicked", "file", file.Name, "panic", r)
			out = file
		}
	}()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(file.Data))
	if err != nil {
		slog.Debug("cover_compress_skipped", "file", file.Name, "reason", "decode", "error", err)
		return file
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels <= 0 || pixels > int64(c.maxPixels) {
		slog.Warn("cover_compress_skipped", "file", file.Name, "reason", "too_large", "width", cfg.Width, "height", cfg.Height)
		return file
	}

	src, format, err := image.Decode(bytes.NewReader(file.Data))
	if err != nil {
		slog.Debug("cover_compress_skipped", "file", file.Name, "reason", "decode", "error", err)
		return file
	}
	if format == "gif" && isAnimated(file.Data) {
		slog.Debug("cover_compress_skipped", "file", file.Name, "reason", "animated")
		return file
	}

	img, resized := c.fit(src)
	for _, enc := range c.encoders {
		var buf bytes.Buffer
		if err := enc.encode(&buf, img, c.quality); err != nil {
			slog.Warn("cover_encoder_failed", "encoder", enc.name, "file", file.Name, "error", err)
			continue
		}
		if !resized && buf.Len() >= len(file.Data) {
			return file
		}
		return domain.File{
			Name:        replaceExt(file.Name, enc.ext),
			ContentType: enc.contentType,
			Data:        buf.Bytes(),
		}
	}
	return file
}

// fit scales src so that its longer side is at most maxDimension.
func (c *Compressor) fit(src image.Image) (image.Image, bool) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if longest <= c.maxDimension {
		return src, false
	}
	scale := float64(c.maxDimension) / float64(longest)
	nw := max(1, int(float64(w)*scale+0.5))
	nh := max(1, int(float64(h)*scale+0.5))

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst, true
}

func isAnimated(data []byte) bool {
	anim, err := gif.DecodeAll(bytes.NewReader(data))
	return err == nil && len(anim.Image) > 1
}

func replaceExt(name, ext string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if base == "" {
		base = "cover"
	}
	return base + ext
}
