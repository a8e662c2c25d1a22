// Package imaging decodes uploaded images and turns them into the
// normalized tensor layout the classifier expects.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	ResizeSize = 256
	CropSize   = 224
)

var (
	Mean = [3]float32{0.485, 0.456, 0.406}
	Std  = [3]float32{0.229, 0.224, 0.225}
)

var (
	ErrNotImage  = errors.New("upload is not an image")
	ErrDecode    = errors.New("invalid image data")
	ErrTransform = errors.New("image transform failed")
)

// ContentType returns the media type used to accept an upload. The declared
// type must be image/*; data is sniffed only when no type was declared.
func ContentType(declared string, data []byte) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(declared))
	if ct == "" {
		ct = mimetype.Detect(data).String()
	}
	if major, _, _ := strings.Cut(ct, "/"); major != "image" {
		return ct, ErrNotImage
	}
	return ct, nil
}

// Decode decodes data as an image and returns it along with its format name.
// Images with more than maxPixels pixels are rejected from their header,
// before any pixel data is allocated. maxPixels <= 0 disables the check.
func Decode(data []byte, maxPixels int64) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); maxPixels > 0 && pixels > maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds the %d pixel limit", ErrDecode, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, format, nil
}

// Preprocess resizes the shortest side to ResizeSize, center-crops to
// CropSize and returns a CHW float32 tensor normalized with Mean and Std.
func Preprocess(img image.Image) ([]float32, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty image %dx%d", ErrTransform, b.Dx(), b.Dy())
	}

	w, h := ResizedSize(b.Dx(), b.Dy(), ResizeSize)
	resized := resize.Resize(uint(w), uint(h), toRGB(img), resize.Bilinear)

	rb := resized.Bounds()
	if rb.Dx() < CropSize || rb.Dy() < CropSize {
		return nil, fmt.Errorf("%w: resized image %dx%d is smaller than %d", ErrTransform, rb.Dx(), rb.Dy(), CropSize)
	}
	left, top := CropOffset(rb.Dx(), CropSize), CropOffset(rb.Dy(), CropSize)

	plane := CropSize * CropSize
	out := make([]float32, 3*plane)
	for y := 0; y < CropSize; y++ {
		for x := 0; x < CropSize; x++ {
			r, g, bl, _ := resized.At(rb.Min.X+left+x, rb.Min.Y+top+y).RGBA()
			i := y*CropSize + x
			out[i] = normalize(r, 0)
			out[plane+i] = normalize(g, 1)
			out[2*plane+i] = normalize(bl, 2)
		}
	}
	return out, nil
}

// ResizedSize scales (w, h) so that the shorter side equals size. The
// longer side is truncated.
func ResizedSize(w, h, size int) (int, int) {
	if w <= h {
		return size, int(float64(size) * float64(h) / float64(w))
	}
	return int(float64(size) * float64(w) / float64(h)), size
}

// CropOffset is the leading offset of a centered crop, rounded half to even.
func CropOffset(length, crop int) int {
	return int(math.RoundToEven(float64(length-crop) / 2))
}

func normalize(v uint32, ch int) float32 {
	return (float32(v>>8)/255 - Mean[ch]) / Std[ch]
}

// toRGB drops the alpha channel, keeping straight (non-premultiplied) color.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst
}
