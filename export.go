package silica

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Export writes img to path, picking the encoder from the file extension.
// Supported: png, jpg/jpeg, webp, tga, bmp, tiff/tif.
func Export(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		err = png.Encode(f, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, nil)
	case ".webp":
		err = nativewebp.Encode(f, img, nil)
	case ".tga":
		err = tga.Encode(f, img)
	case ".bmp":
		err = bmp.Encode(f, img)
	case ".tiff", ".tif":
		err = tiff.Encode(f, img, nil)
	default:
		err = fmt.Errorf("unsupported output format %q: %w", ext, ErrInvalidValue)
	}
	if err != nil {
		return fmt.Errorf("failed to export %s: %w", path, err)
	}
	return nil
}

// transformImage applies the document's stored rotation, then its mirror
// state, to rendered pixels.
func transformImage(img *image.RGBA, o Orientation, f Flipped) *image.RGBA {
	switch o {
	case Orientation90:
		img = rotate90(img)
	case Orientation180:
		img = rotate180(img)
	case Orientation270:
		img = rotate270(img)
	}
	if f.Horizontally {
		img = flipH(img)
	}
	if f.Vertically {
		img = flipV(img)
	}
	return img
}

func rotate90(src *image.RGBA) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			copyPixel(dst, h-1-y, x, src, x, y)
		}
	}
	return dst
}

func rotate180(src *image.RGBA) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			copyPixel(dst, w-1-x, h-1-y, src, x, y)
		}
	}
	return dst
}

func rotate270(src *image.RGBA) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			copyPixel(dst, y, w-1-x, src, x, y)
		}
	}
	return dst
}

func flipH(src *image.RGBA) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			copyPixel(dst, w-1-x, y, src, x, y)
		}
	}
	return dst
}

func flipV(src *image.RGBA) *image.RGBA {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			copyPixel(dst, x, h-1-y, src, x, y)
		}
	}
	return dst
}

func copyPixel(dst *image.RGBA, dx, dy int, src *image.RGBA, sx, sy int) {
	do := dst.PixOffset(dx, dy)
	so := src.PixOffset(sx+src.Rect.Min.X, sy+src.Rect.Min.Y)
	copy(dst.Pix[do:do+4], src.Pix[so:so+4])
}
