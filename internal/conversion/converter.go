package conversion

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"
)

// CanonicalLongSide is the size of the larger image dimension after normalization.
// Every bounding box is expressed in this coordinate space.
const CanonicalLongSide = 1024

const jpegQuality = 90

// DefaultMaxPixels bounds the decoded size of an upload (width * height).
// 50 megapixels covers current phone cameras.
const DefaultMaxPixels = 50_000_000

var (
	// ErrUnsupportedFormat is returned when the input cannot be decoded as an image.
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrImageTooLarge is returned when the header declares more pixels than allowed.
	ErrImageTooLarge = errors.New("image dimensions exceed the pixel limit")
)

// Normalized is a re-encoded image in the canonical format and coordinate space.
type Normalized struct {
	JPEG   []byte
	Width  int
	Height int
}

// Normalize decodes data, converts it to JPEG and resizes it so that the larger
// side is exactly CanonicalLongSide. The aspect ratio is kept and no padding is added.
//
// The header is checked against maxPixels before any pixel data is decoded.
// A maxPixels of zero or less selects DefaultMaxPixels.
func Normalize(data []byte, maxPixels int) (*Normalized, error) {
	if len(data) == 0 {
		return nil, ErrUnsupportedFormat
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, err := decodeConfig(data)
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrUnsupportedFormat
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, errors.Wrapf(ErrImageTooLarge, "%dx%d is above %d pixels", cfg.Width, cfg.Height, maxPixels)
	}

	img, err := decode(data)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, ErrUnsupportedFormat
	}
	if w >= h {
		img = imaging.Resize(img, CanonicalLongSide, 0, imaging.Lanczos)
	} else {
		img = imaging.Resize(img, 0, CanonicalLongSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, errors.Wrap(err, "encode jpeg")
	}
	nb := img.Bounds()
	return &Normalized{JPEG: buf.Bytes(), Width: nb.Dx(), Height: nb.Dy()}, nil
}

func decodeConfig(data []byte) (cfg image.Config, err error) {
	defer func() {
		if r := recover(); r != nil {
			cfg, err = image.Config{}, ErrUnsupportedFormat
		}
	}()

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return cfg, nil
	}
	if cfg, err := webp.DecodeConfig(bytes.NewReader(data)); err == nil {
		return cfg, nil
	}
	return image.Config{}, ErrUnsupportedFormat
}

func decode(data []byte) (img image.Image, err error) {
	// Some decoders panic on truncated input.
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, ErrUnsupportedFormat
		}
	}()

	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, ErrUnsupportedFormat
}
