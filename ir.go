package boxyvoc

// The intermediate annotation metadata representation.

import (
	"fmt"
	"image/color"
	"log"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// VehicleLabel is the label given to every extracted vehicle box.
const VehicleLabel = "car"

// The image dimensions written to the annotations when the images are not inspected.
const (
	DefaultImageWidth  = 1232
	DefaultImageHeight = 1028
	DefaultImageDepth  = 3
)

// BndBox is an integer bounding box. The corners are passed through from the source as is, so
// XMin > XMax is possible if the source supplied reversed corners.
type BndBox struct {
	XMin int
	XMax int
	YMin int
	YMax int
}

// Width is the box width.
func (b BndBox) Width() int {
	return b.XMax - b.XMin
}

// Height is the box height.
func (b BndBox) Height() int {
	return b.YMax - b.YMin
}

// Object is the intermediate representation of an object label.
type Object struct {
	BndBox BndBox
	Name   string
}

// ImageSize holds the image dimensions. Depth is the number of color channels.
type ImageSize struct {
	Width  int
	Height int
	Depth  int
}

// DefaultImageSize returns the fixed default dimensions.
func DefaultImageSize() ImageSize {
	return ImageSize{Width: DefaultImageWidth, Height: DefaultImageHeight, Depth: DefaultImageDepth}
}

// AnnotatedImage is the intermediate representation of the metadata of one image.
type AnnotatedImage struct {
	ImagePath string    // The image file on disk. Empty if the images are not used.
	Objects   []Object  // The objects, in source order.
	Path      string    // The image path as given by the source annotations.
	Size      ImageSize // The dimensions written to the output.
}

// AnnotatedImages is the annotation metadata for a list of images.
type AnnotatedImages []AnnotatedImage

// MapLabels replaces label (sub-)strings with substitution values, as specified in mappings.
//
// The format of mappings is old=new.
func (data AnnotatedImages) MapLabels(mappings []string) error {
	if len(mappings) == 0 {
		return nil
	}

	// Extract the individual old and new strings to map between.
	replacements := make([]struct{ old, new string }, len(mappings))
	for i, v := range mappings {
		a := strings.Split(v, "=")
		if len(a) != 2 || a[0] == "" {
			return fmt.Errorf("invalid mapping: %v", v)
		}

		replacements[i].old = a[0]
		replacements[i].new = a[1]
	}

	// Apply the replacements, in order, to all labels.
	count := 0
	for _, img := range data {
		for i := range img.Objects {
			o := &img.Objects[i]

			oldName := o.Name
			for _, r := range replacements {
				o.Name = strings.Replace(o.Name, r.old, r.new, -1)
			}

			if o.Name != oldName {
				count++
			}
		}
	}

	log.Printf("The label mappings changed %d labels", count)
	return nil
}

// SetImageSizes sets the output dimensions of all images.
//
// If imageDir is empty, every image gets def. Otherwise the image paths are resolved relative to
// imageDir, the image headers are decoded and the dimensions are divided by resizeFactor, so they
// match the rescaled bounding boxes. Images that cannot be decoded keep def.
func (data AnnotatedImages) SetImageSizes(imageDir string, def ImageSize, resizeFactor float64) {
	if imageDir == "" {
		for i := range data {
			data[i].Size = def
		}
		return
	}

	numDecoded := 0
	for i := range data {
		img := &data[i]
		img.ImagePath = filepath.Join(imageDir, filepath.FromSlash(img.Path))
		img.Size = def

		config, _, err := decodeImageConfig(img.ImagePath)
		if err != nil {
			log.Printf("Cannot read the image size of %q, using the default: %v", img.ImagePath, err)
			continue
		}

		width, err := scaleDimension(config.Width, resizeFactor)
		if err == nil {
			var height int
			if height, err = scaleDimension(config.Height, resizeFactor); err == nil {
				img.Size = ImageSize{Width: width, Height: height, Depth: colorDepth(config.ColorModel)}
			}
		}
		if err != nil {
			log.Printf("Cannot rescale the image size of %q, using the default: %v", img.ImagePath, err)
			continue
		}
		numDecoded++
	}

	log.Printf("Read the image size of %d of %d images", numDecoded, len(data))
}

// ProcessImages resizes all referenced images by 1/resizeFactor and writes them to imageOutDir
// using the specified encoding. The image paths and sizes are updated to the written images.
//
// Images without an ImagePath are skipped. The first failure aborts the processing.
func (data AnnotatedImages) ProcessImages(imageOutDir string, resizeFactor float64,
		resampleFilter, encoding string, jpegQuality int) error {

	if imageOutDir == "" {
		return nil
	}
	log.Print("Processing images")

	filter, err := resampleFilterFrom(resampleFilter)
	if err != nil {
		return err
	}

	// Select the output file extension based on the requested encoding.
	var fileExt string
	switch strings.ToLower(encoding) {
	case "jpg", "jpeg":
		fileExt = ".jpg"
	case "png":
		fileExt = ".png"
	default:
		return fmt.Errorf("unsupported output encoding %q", encoding)
	}

	count := 0
	for i := range data {
		img := &data[i]
		if img.ImagePath == "" {
			continue
		}
		if err := processImage(img, imageOutDir, fileExt, resizeFactor, filter, jpegQuality); err != nil {
			return err
		}
		count++
	}

	log.Printf("Resized %d images", count)
	return nil
}

// processImage loads, resizes and saves the image of data and updates its ImagePath and Size.
func processImage(data *AnnotatedImage, imageOutDir, fileExt string, resizeFactor float64,
		filter imaging.ResampleFilter, jpegQuality int) error {

	img, _, err := loadImage(data.ImagePath)
	if err != nil {
		return fmt.Errorf("cannot load image %q: %v", data.ImagePath, err)
	}

	resized, err := resizeImage(img, resizeFactor, filter)
	if err != nil {
		return fmt.Errorf("cannot resize image %q: %v", data.ImagePath, err)
	}

	inName := filepath.Base(data.ImagePath)
	outName := inName[0:len(inName)-len(filepath.Ext(inName))] + fileExt
	outPath := filepath.Join(imageOutDir, outName)
	if err := saveImage(outPath, resized, jpegQuality); err != nil {
		return fmt.Errorf("cannot save image %q: %v", outPath, err)
	}

	bounds := resized.Bounds()
	data.ImagePath = outPath
	data.Size = ImageSize{Width: bounds.Dx(), Height: bounds.Dy(), Depth: colorDepth(resized.ColorModel())}
	return nil
}

// scaleDimension divides an image dimension by resizeFactor, rounding like the box coordinates.
func scaleDimension(v int, resizeFactor float64) (int, error) {
	scaled, ok := roundToInt(float64(v) / resizeFactor)
	if !ok {
		return 0, fmt.Errorf("dimension %d out of range after dividing by %v", v, resizeFactor)
	}
	return scaled, nil
}

// colorDepth returns the number of channels written as the VOC depth for the color model.
func colorDepth(m color.Model) int {
	switch m {
	case color.GrayModel, color.Gray16Model:
		return 1
	}
	return 3
}
