package boxyvoc

// TFRecord object detection specific functionality.

import (
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"math"
	"os"

	"github.com/golang/protobuf/proto"
	"github.com/ryszard/tfutils/go/example"
	"github.com/ryszard/tfutils/go/tfrecord"
	"github.com/ryszard/tfutils/proto/tensorflow/core/example" // package tensorflow
	protos "github.com/sensorable/boxyvoc/protos"
	"golang.org/x/exp/slices"
)

// TFFeatureMap maps feature names to their values. Values must be convertible to
// tensorflow.Feature.
type TFFeatureMap map[string]interface{}

// TFRecordAnnotatedImage defines the TFRecord annotation structure for a single image.
type TFRecordAnnotatedImage struct {
	Annotations TFFeatureMap
	FilePath    string
}

// tfRecordLabelMap assigns IDs to labels, starting at 1.
type tfRecordLabelMap struct {
	ids    map[string]int32
	nextID int32
}

// id returns the ID for label, selecting a new one if no mapping exists.
func (m *tfRecordLabelMap) id(label string) int32 {
	id, found := m.ids[label]
	if !found {
		id = m.nextID
		m.ids[label] = id
		m.nextID++
	}
	return id
}

// toTFRecord converts the intermediate representation for a single image to the TFRecord format.
// The bounding boxes are normalised by img.Size, while the image size features describe the
// encoded image.
func toTFRecord(img AnnotatedImage, labelMap *tfRecordLabelMap) (TFRecordAnnotatedImage, error) {
	config, format, err := decodeImageConfig(img.ImagePath)
	if err != nil {
		return TFRecordAnnotatedImage{}, fmt.Errorf("failed to decode the image metadata: %v", err)
	}

	imgData, err := readFile(img.ImagePath)
	if err != nil {
		return TFRecordAnnotatedImage{}, fmt.Errorf("failed to read the image: %v", err)
	}

	// The boxes are in the coordinate space of img.Size, which differs from the encoded image if
	// it was not resized.
	width, height := img.Size.Width, img.Size.Height
	if width <= 0 || height <= 0 {
		width, height = config.Width, config.Height
	}

	// Prepare the feature map for the per image data.
	f := make(TFFeatureMap, 16)
	f["image/height"] = config.Height
	f["image/width"] = config.Width
	f["image/filename"] = baseName(img.Path)
	f["image/source_id"] = img.Path
	f["image/encoded"] = imgData
	f["image/format"] = format

	// Prepare the per object data.
	numObjects := len(img.Objects)
	xmins := make([]float32, numObjects)
	ymins := make([]float32, numObjects)
	xmaxs := make([]float32, numObjects)
	ymaxs := make([]float32, numObjects)
	classes := make([]string, numObjects)
	classIDs := make([]int64, numObjects)
	for i, o := range img.Objects {
		xmins[i] = float32(o.BndBox.XMin) / float32(width)
		ymins[i] = float32(o.BndBox.YMin) / float32(height)
		xmaxs[i] = float32(o.BndBox.XMax) / float32(width)
		ymaxs[i] = float32(o.BndBox.YMax) / float32(height)
		classes[i] = o.Name
		classIDs[i] = int64(labelMap.id(o.Name))
	}
	f["image/object/bbox/xmin"] = xmins
	f["image/object/bbox/ymin"] = ymins
	f["image/object/bbox/xmax"] = xmaxs
	f["image/object/bbox/ymax"] = ymaxs
	f["image/object/class/text"] = classes
	f["image/object/class/label"] = classIDs

	return TFRecordAnnotatedImage{
		Annotations: f,
		FilePath:    img.ImagePath,
	}, nil
}

// WriteTFRecord does a streaming conversion, serialisation and file write for the annotation data
// to one or more TFRecord files stored under recordFilePath (with suffixes added when numShards>1).
//
// Only images with an ImagePath are written, as the encoded image is part of each record. The
// label map at labelMapPath is loaded if it exists, extended with new labels and written back.
func WriteTFRecord(recordFilePath, labelMapPath string, data []AnnotatedImage,
		numShards int) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("conversion to TensorFlow Example failed: %v", e)
		}
	}()

	if numShards <= 0 {
		numShards = 1
	}

	// Try to load an existing label map. It is not an error if the file does not exist.
	labelMap := &tfRecordLabelMap{ids: make(map[string]int32), nextID: 1}
	if ids, maxID, err := loadTFRecordLabelMap(labelMapPath); err == nil {
		log.Print("Label map loaded successfully")
		labelMap.ids = ids
		labelMap.nextID = maxID + 1
	} else if os.IsNotExist(err) {
		log.Print("Creating a new label map")
	} else {
		return fmt.Errorf("failed to read the label map from %q: %v", labelMapPath, err)
	}

	images := make([]AnnotatedImage, 0, len(data))
	for _, img := range data {
		if img.ImagePath == "" {
			log.Printf("No image file for %q, skipping", img.Path)
			continue
		}
		images = append(images, img)
	}

	fmtShardSuffix := func(idx int) string {
		return fmt.Sprintf("-%05d-of-%05d", idx, numShards)
	}

	var shardFile *os.File
	defer func() {
		if shardFile != nil {
			closeWithErrCheck(shardFile, &err)
		}
	}()
	shardSize := int(math.Ceil(float64(len(images)) / float64(numShards)))
	shardIdx := -1

	// Convert and serialise one image at a time.
	count := 0
	for i, img := range images {
		// Check if a new shard file needs to be opened for writing.
		if i%shardSize == 0 {
			shardIdx++

			// Close the previous shard file.
			if shardFile != nil {
				f := shardFile
				shardFile = nil
				if err := f.Close(); err != nil {
					return err
				}
			}

			// Create the new shard file.
			shardPath := recordFilePath
			if numShards > 1 {
				shardPath += fmtShardSuffix(shardIdx)
			}
			f, err := os.Create(shardPath)
			if err != nil {
				return fmt.Errorf("failed to create shard at %q: %v", shardPath, err)
			}
			shardFile = f
		}

		// Convert the image data to an example.
		tfImage, err := toTFRecord(img, labelMap)
		if err != nil {
			log.Printf("Failed to convert %q: %v", img.ImagePath, err)
			continue
		}
		tfExample := example.New(tfImage.Annotations)

		if err := writeTFRecordExample(shardFile, tfExample); err != nil {
			return fmt.Errorf("failed to write example for %q: %v", img.Path, err)
		}
		count++
	}

	log.Printf("Wrote %d TFRecord examples to %s", count, recordFilePath)
	return saveTFRecordLabelMap(labelMapPath, labelMap.ids)
}

// writeTFRecordExample serialises the example and writes it as a TFRecord to w.
func writeTFRecordExample(w io.Writer, e *tensorflow.Example) error {
	enc, err := proto.Marshal(e)
	if err != nil {
		return err
	}

	return tfrecord.Write(w, enc)
}

// saveTFRecordLabelMap converts the labelMap to prototxt format and writes it to path, ordered
// by ID.
func saveTFRecordLabelMap(path string, labelMap map[string]int32) (err error) {
	// Copy the label map into the protobuf structure.
	siLabelMap := &protos.StringIntLabelMap{}
	siLabelMap.Item = make([]*protos.StringIntLabelMapItem, 0, len(labelMap))
	for k, v := range labelMap {
		siLabelMap.Item = append(siLabelMap.Item, &protos.StringIntLabelMapItem{
			Name: proto.String(k),
			Id:   proto.Int32(v),
		})
	}
	slices.SortFunc(siLabelMap.Item, func(a, b *protos.StringIntLabelMapItem) bool {
		return a.GetId() < b.GetId()
	})

	// Write the label map.
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create the label map file %q: %v", path, err)
	}
	defer closeWithErrCheck(file, &err)

	if err := proto.MarshalText(file, siLabelMap); err != nil {
		return fmt.Errorf("failed to write the label map %q: %v", path, err)
	}

	return nil
}

// loadTFRecordLabelMap loads the label map from path. It also returns the largest ID value
// encountered in the map.
//
// If an error occurs because the file does not exist, then os.IsNotExist will return true for the
// error.
func loadTFRecordLabelMap(path string) (map[string]int32, int32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()

	text, err := ioutil.ReadAll(file)
	if err != nil {
		return nil, 0, err
	}

	var siLabelMap protos.StringIntLabelMap
	if err := proto.UnmarshalText(string(text), &siLabelMap); err != nil {
		return nil, 0, err
	}

	labelMap := make(map[string]int32, len(siLabelMap.Item))
	var maxID int32
	for _, item := range siLabelMap.Item {
		k, v := item.GetName(), item.GetId()
		if k == "" || v <= 0 {
			return nil, 0, fmt.Errorf("invalid entry: %s: %d", k, v)
		}

		labelMap[k] = v
		if v > maxID {
			maxID = v
		}
	}

	return labelMap, maxID, nil
}
