// Package imaging normalizes uploaded portfolio logos for report headers.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
)

// MaxLogoSize caps the longer side of a stored logo, in pixels.
const MaxLogoSize = 600

// MaxUpload is the largest accepted upload in bytes.
const MaxUpload = 5 << 20

const jpegQuality = 90

// ErrUnsupported is returned for uploads that are not JPEG or PNG.
var ErrUnsupported = errors.New("unsupported image format")

var allowedMIME = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Logo is a processed logo ready to embed in a PDF.
type Logo struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// ProcessLogo sniffs the upload, flattens any transparency onto white,
// downscales it to MaxLogoSize and re-encodes it as JPEG.
func ProcessLogo(r io.Reader) (*Logo, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUpload+1))
	if err != nil {
		return nil, fmt.Errorf("reading logo: %w", err)
	}
	if len(data) > MaxUpload {
		return nil, fmt.Errorf("logo larger than %d bytes: %w", MaxUpload, ErrUnsupported)
	}

	// Trust the bytes, not the client's Content-Type.
	detected := http.DetectContentType(data)
	if !allowedMIME[detected] {
		return nil, fmt.Errorf("%s: %w", detected, ErrUnsupported)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding logo: %w", err)
	}

	img := flatten(fit(src, MaxLogoSize))

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding logo: %w", err)
	}

	b := img.Bounds()
	return &Logo{Data: buf.Bytes(), MIME: "image/jpeg", Width: b.Dx(), Height: b.Dy()}, nil
}

// fit scales img down so its longer side is at most limit.
func fit(img image.Image, limit int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= limit && h <= limit {
		return img
	}

	newW, newH := limit, h*limit/w
	if h > w {
		newW, newH = w*limit/h, limit
	}
	newW, newH = max(newW, 1), max(newH, 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// flatten composites img over a white background.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", jpeg.Decode, jpeg.DecodeConfig)
	image.RegisterFormat("png", "\x89PNG", png.Decode, png.DecodeConfig)
}
