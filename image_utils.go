package boxyvoc

import (
	"fmt"
	"image"
	_ "image/gif" // Register the GIF decoder.
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register the BMP decoder.
	_ "golang.org/x/image/tiff" // Register the TIFF decoder.
	_ "golang.org/x/image/webp" // Register the WebP decoder.
)

// resampleFilterFrom returns the imaging filter with the given name.
func resampleFilterFrom(name string) (imaging.ResampleFilter, error) {
	switch name {
	case "nearest":
		return imaging.NearestNeighbor, nil
	case "box":
		return imaging.Box, nil
	case "linear":
		return imaging.Linear, nil
	case "gaussian":
		return imaging.Gaussian, nil
	case "lanczos":
		return imaging.Lanczos, nil
	}
	return imaging.ResampleFilter{}, fmt.Errorf("unknown resampling filter %q", name)
}

// resizeImage resamples the image to its size divided by resizeFactor. Neither side becomes
// smaller than one pixel.
func resizeImage(img image.Image, resizeFactor float64, filter imaging.ResampleFilter) (
		image.Image, error) {

	bounds := img.Bounds()
	width, err := scaleDimension(bounds.Dx(), resizeFactor)
	if err != nil {
		return nil, err
	}
	height, err := scaleDimension(bounds.Dy(), resizeFactor)
	if err != nil {
		return nil, err
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	if width == bounds.Dx() && height == bounds.Dy() {
		return img, nil
	}
	return imaging.Resize(img, width, height, filter), nil
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// loadImage reads and decodes the image at path and returns the results of image.Decode.
func loadImage(path string) (img image.Image, format string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	return image.Decode(f)
}

// Saves the image to path, encoding it as PNG or JPG, depending on the file extension of path.
func saveImage(path string, img image.Image, jpegQuality int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(f, &err)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		err = png.Encode(f, img)
	default:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
	}
	return err
}
