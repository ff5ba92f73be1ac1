// Package imaging validates uploaded images and normalizes them into data URLs
// small enough to embed in a generation request.
package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"mime"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/image/draw"
)

const (
	// MaxFileSize is the advisory upload limit (10 MiB).
	MaxFileSize = 10 * 1024 * 1024
	// MaxWidth is the widest image sent to the generator.
	MaxWidth = 1920
	// JPEGQuality matches the default quality browsers use for canvas exports.
	JPEGQuality = 92
	// MaxPixels bounds width*height of an image before it is decoded.
	MaxPixels = 40_000_000
)

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrProcessImage    = errors.New("failed to process image")
)

var acceptedTypes = map[string]string{
	"image/png":   "image/png",
	"image/x-png": "image/png",
	"image/jpeg":  "image/jpeg",
	"image/jpg":   "image/jpeg",
	"image/pjpeg": "image/jpeg",
}

// File is an uploaded image as declared by the client.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the byte size of the file.
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// Preprocessor carries the limits used by Validate, IsWithinLimit and Normalize.
type Preprocessor struct {
	MaxWidth    int
	MaxFileSize int64
	JPEGQuality int
	MaxPixels   int64
	Logger      zerolog.Logger
}

// New returns a Preprocessor with the default limits.
func New(logger zerolog.Logger) *Preprocessor {
	return &Preprocessor{
		MaxWidth:    MaxWidth,
		MaxFileSize: MaxFileSize,
		JPEGQuality: JPEGQuality,
		MaxPixels:   MaxPixels,
		Logger:      logger.With().Str("component", "imaging").Logger(),
	}
}

// Validate reports whether the declared content type is PNG or JPEG.
func (p *Preprocessor) Validate(file File) bool {
	_, ok := canonicalType(file.ContentType)
	return ok
}

// IsWithinLimit reports whether the file fits the size limit. The result is
// advisory: Normalize does not enforce it.
func (p *Preprocessor) IsWithinLimit(file File) bool {
	return file.Size() <= p.maxFileSize()
}

// Normalize decodes the file and returns it as a base64 data URL. Images wider
// than MaxWidth are scaled down proportionally and re-encoded in their own
// format; narrower images are returned byte for byte. Images whose header
// declares more than MaxPixels pixels are rejected before decoding.
func (p *Preprocessor) Normalize(ctx context.Context, file File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(file.Data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProcessImage, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); cfg.Width <= 0 || cfg.Height <= 0 || pixels > p.maxPixels() {
		p.Logger.Warn().
			Str("file", file.Name).
			Int("width", cfg.Width).
			Int("height", cfg.Height).
			Msg("image rejected: too many pixels")
		return "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrProcessImage, cfg.Width, cfg.Height, p.maxPixels())
	}
	img, format, err := image.Decode(bytes.NewReader(file.Data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrProcessImage, err)
	}
	mimeType, ok := canonicalType("image/" + format)
	if !ok {
		return "", fmt.Errorf("%w: decoded format %q", ErrProcessImage, format)
	}

	bounds := img.Bounds()
	maxWidth := p.maxWidth()
	if bounds.Dx() <= maxWidth {
		return DataURL(mimeType, file.Data), nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	width, height := ScaledSize(bounds.Dx(), bounds.Dy(), maxWidth)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	switch mimeType {
	case "image/jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: p.jpegQuality()})
	default:
		err = png.Encode(&buf, dst)
	}
	if err != nil {
		return "", fmt.Errorf("%w: encode: %v", ErrProcessImage, err)
	}

	p.Logger.Debug().
		Str("file", file.Name).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Int("scaled_width", width).
		Int("scaled_height", height).
		Msg("image downscaled")

	return DataURL(mimeType, buf.Bytes()), nil
}

// ScaledSize returns the dimensions of a width x height image scaled by
// maxWidth/width. The height is truncated and never drops below one pixel.
func ScaledSize(width, height, maxWidth int) (int, int) {
	if width <= maxWidth || width <= 0 {
		return width, height
	}
	scale := float64(maxWidth) / float64(width)
	scaled := int(float64(height) * scale)
	if scaled < 1 {
		scaled = 1
	}
	return maxWidth, scaled
}

// DataURL encodes data as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ErrNotDataURL is returned by ParseDataURL for anything but a base64 data URL.
var ErrNotDataURL = errors.New("not a base64 data URL")

// ParseDataURL reverses DataURL.
func ParseDataURL(url string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrNotDataURL, err)
	}
	return mimeType, data, nil
}

// Extension returns the file extension for a supported image MIME type.
func Extension(mimeType string) string {
	switch canonical, _ := canonicalType(mimeType); canonical {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	default:
		return ".bin"
	}
}

func canonicalType(contentType string) (string, bool) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(contentType)
	}
	canonical, ok := acceptedTypes[strings.ToLower(mediaType)]
	return canonical, ok
}

func (p *Preprocessor) maxWidth() int {
	if p == nil || p.MaxWidth <= 0 {
		return MaxWidth
	}
	return p.MaxWidth
}

func (p *Preprocessor) maxFileSize() int64 {
	if p == nil || p.MaxFileSize <= 0 {
		return MaxFileSize
	}
	return p.MaxFileSize
}

func (p *Preprocessor) maxPixels() int64 {
	if p == nil || p.MaxPixels <= 0 {
		return MaxPixels
	}
	return p.MaxPixels
}

func (p *Preprocessor) jpegQuality() int {
	if p == nil || p.JPEGQuality <= 0 || p.JPEGQuality > 100 {
		return JPEGQuality
	}
	return p.JPEGQuality
}
