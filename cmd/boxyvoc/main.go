// Converts Boxy vehicle annotations to PASCAL VOC XML files, one per image, and optionally to
// TFRecord.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/sensorable/boxyvoc"
)

var (
	sourceFilePath string  // The input JSON file with the Boxy annotations.
	outputDirPath  string  // The output directory for the VOC files.
	resizeFactor   float64 // The divisor for all coordinates.

	imageWidth    int    // The image width written when the images are not read.
	imageHeight   int    // The image height written when the images are not read.
	imageDepth    int    // The image depth written when the images are not read.
	labelMappings string // A comma-separated string of label mappings.

	imageDirPath        string // The input directory with the annotated images (optional).
	imageOutDirPath     string // The output directory for resized images (optional).
	imageResampleFilter string // The algorithm to use when resizing.
	imageOutEncoding    string // The file type for image outputs.
	imageJPEGQuality    int    // The JPEG quality for JPEG outputs.

	tfRecordFilePath         string // The TFRecord output file (optional).
	tfRecordLabelMapFilePath string // The TFRecord label map file.
	numShardFiles            int    // The number of shard files to create.
)

func init() {
	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintf(os.Stderr, "  %s [options] sourcefile outputdir rs\n\n",
			filepath.Base(os.Args[0]))
		_, _ = fmt.Fprintln(os.Stderr, "  sourcefile\tInput file with image annotations")
		_, _ = fmt.Fprintln(os.Stderr, "  outputdir\tFolder for output annotation files")
		_, _ = fmt.Fprintln(os.Stderr, "  rs\t\tResize factor for annotated images")
		_, _ = fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}

	printUsageAndExit := func(msg ...interface{}) {
		log.Print(msg...)
		flag.Usage()
		os.Exit(1)
	}

	// Output arguments.
	flag.IntVar(&imageWidth, "width", boxyvoc.DefaultImageWidth,
		"The image width in `pixels` written to every annotation (ignored with -images)")
	flag.IntVar(&imageHeight, "height", boxyvoc.DefaultImageHeight,
		"The image height in `pixels` written to every annotation (ignored with -images)")
	flag.IntVar(&imageDepth, "depth", boxyvoc.DefaultImageDepth,
		"The image depth (`channels`) written to every annotation (ignored with -images)")
	flag.StringVar(&labelMappings, "map-labels", labelMappings,
		"Comma-separated list of old=new label (sub-)string replacements")

	// Image arguments.
	flag.StringVar(&imageDirPath, "images", imageDirPath,
		"The `path` to the annotated images; the annotation keys are resolved relative to it and"+
				" the image sizes are read from the files")
	flag.StringVar(&imageOutDirPath, "images-out", imageOutDirPath,
		"The `path` to write the images resized by 1/rs to (requires -images)")
	flag.StringVar(&imageResampleFilter, "resample-filter", "box",
		"The filter to use when resizing an image {nearest, box, linear, gaussian, lanczos}")
	flag.StringVar(&imageOutEncoding, "image-enc", "jpg",
		"The `encoding` for output images {jpg, png}")
	flag.IntVar(&imageJPEGQuality, "jpeg-quality", 90,
		"The quality to use when encoding JPEGs [1, 100]")

	// TFRecord arguments.
	flag.StringVar(&tfRecordFilePath, "tfrecord", tfRecordFilePath,
		"The TFRecord output file `path` (requires -images)")
	flag.StringVar(&tfRecordLabelMapFilePath, "tfrecord-label-map", tfRecordLabelMapFilePath,
		"The TFRecord label map file `path`")
	flag.IntVar(&numShardFiles, "num-shards", 1,
		"The number of shard files to create (tfrecord only)")

	// Parse and validate flags.
	flag.Parse()

	if flag.NArg() != 3 {
		printUsageAndExit("Expected the arguments sourcefile, outputdir and rs")
	}

	var err error
	if resizeFactor, err = boxyvoc.ParseResizeFactor(flag.Arg(2)); err != nil {
		printUsageAndExit("Invalid resize factor: ", flag.Arg(2))
	}

	// Paths must exist before anything is parsed.
	if sourceFilePath, err = boxyvoc.ValidatePath(flag.Arg(0)); err != nil {
		log.Fatal(err)
	}
	if outputDirPath, err = boxyvoc.ValidateDir(flag.Arg(1)); err != nil {
		log.Fatal(err)
	}

	if imageWidth <= 0 || imageHeight <= 0 || imageDepth <= 0 {
		printUsageAndExit("Invalid image dimensions")
	}

	// Image processing arguments.
	if imageDirPath != "" {
		if imageDirPath, err = boxyvoc.ValidateDir(imageDirPath); err != nil {
			log.Fatal(err)
		}
	}
	if imageOutDirPath != "" {
		if imageDirPath == "" {
			printUsageAndExit("Argument -images-out requires -images")
		}
		if imageOutDirPath, err = boxyvoc.ValidateDir(imageOutDirPath); err != nil {
			log.Fatal(err)
		}
		if imageDirPath == imageOutDirPath {
			printUsageAndExit("The image input and output paths cannot be identical")
		}
	}
	if imageJPEGQuality < 1 || imageJPEGQuality > 100 {
		imageJPEGQuality = 92
		log.Print("Invalid JPEG quality, setting it to ", imageJPEGQuality)
	}

	// TFRecord arguments.
	if tfRecordFilePath != "" {
		if imageDirPath == "" {
			printUsageAndExit("Argument -tfrecord requires -images")
		}
		if tfRecordLabelMapFilePath == "" {
			printUsageAndExit("Missing -tfrecord-label-map path argument")
		}
		tfRecordFilePath = filepath.Clean(tfRecordFilePath)
		tfRecordLabelMapFilePath = filepath.Clean(tfRecordLabelMapFilePath)
	}
}

func main() {
	log.Printf("Input file is: %s", sourceFilePath)
	log.Printf("Output dir is: %s", outputDirPath)

	// Parse input.
	data, err := boxyvoc.FromBoxy(sourceFilePath, resizeFactor)
	if err != nil {
		log.Fatal("Failed to parse the input: ", err)
	}

	images := boxyvoc.AnnotatedImages(data)

	// Map labels.
	if len(labelMappings) > 0 {
		if err := images.MapLabels(strings.Split(labelMappings, ",")); err != nil {
			log.Fatal("Failed to map labels: ", err)
		}
	}

	// Set the image dimensions and resize the images if requested.
	images.SetImageSizes(imageDirPath,
		boxyvoc.ImageSize{Width: imageWidth, Height: imageHeight, Depth: imageDepth}, resizeFactor)
	err = images.ProcessImages(imageOutDirPath, resizeFactor, imageResampleFilter, imageOutEncoding,
		imageJPEGQuality)
	if err != nil {
		log.Fatal("Image processing failed: ", err)
	}

	// Write the outputs.
	if err := boxyvoc.WriteVOC(outputDirPath, boxyvoc.ToVOC(images)); err != nil {
		log.Fatal("Conversion failed: ", err)
	}
	log.Printf("Successfully wrote annotations for %d images to %s", len(images), outputDirPath)

	if tfRecordFilePath != "" {
		err := boxyvoc.WriteTFRecord(tfRecordFilePath, tfRecordLabelMapFilePath, images, numShardFiles)
		if err != nil {
			log.Fatal("TFRecord conversion failed: ", err)
		}
	}
}
