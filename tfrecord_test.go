package boxyvoc

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestWriteTFRecord(t *testing.T) {
	convey.Convey("write TFRecord files", t, func() {
		dir, err := ioutil.TempDir("", "boxyvoc")
		convey.So(err, convey.ShouldBeNil)
		convey.Reset(func() {
			_ = os.RemoveAll(dir)
		})

		imgPath := filepath.Join(dir, "img1.png")
		writeTestPNG(t, imgPath, 64, 32, false)

		data := []AnnotatedImage{
			{
				ImagePath: imgPath,
				Objects:   []Object{{BndBox: BndBox{XMin: 8, XMax: 32, YMin: 4, YMax: 16}, Name: "car"}},
				Path:      "bag/img1.png",
				Size:      ImageSize{Width: 64, Height: 32, Depth: 3},
			},
			{Path: "bag/no_image.png", Size: DefaultImageSize()},
			{
				ImagePath: imgPath,
				Objects:   []Object{{BndBox: BndBox{XMin: 0, XMax: 64, YMin: 0, YMax: 32}, Name: "car"}},
				Path:      "bag/img2.png",
				Size:      ImageSize{Width: 64, Height: 32, Depth: 3},
			},
		}
		recordPath := filepath.Join(dir, "boxy.record")
		labelMapPath := filepath.Join(dir, "label_map.pbtxt")

		convey.Convey("writes the records and a new label map", func() {
			convey.So(WriteTFRecord(recordPath, labelMapPath, data, 1), convey.ShouldBeNil)

			info, err := os.Stat(recordPath)
			convey.So(err, convey.ShouldBeNil)
			convey.So(info.Size(), convey.ShouldBeGreaterThan, 0)

			labelMap, maxID, err := loadTFRecordLabelMap(labelMapPath)
			convey.So(err, convey.ShouldBeNil)
			convey.So(labelMap, convey.ShouldResemble, map[string]int32{"car": 1})
			convey.So(maxID, convey.ShouldEqual, 1)
		})

		convey.Convey("extends an existing label map", func() {
			convey.So(WriteTFRecord(recordPath, labelMapPath, data, 1), convey.ShouldBeNil)

			data[0].Objects[0].Name = "truck"
			convey.So(WriteTFRecord(recordPath, labelMapPath, data, 1), convey.ShouldBeNil)

			labelMap, maxID, err := loadTFRecordLabelMap(labelMapPath)
			convey.So(err, convey.ShouldBeNil)
			convey.So(labelMap, convey.ShouldResemble, map[string]int32{"car": 1, "truck": 2})
			convey.So(maxID, convey.ShouldEqual, 2)

			text, err := ioutil.ReadFile(labelMapPath)
			convey.So(err, convey.ShouldBeNil)
			convey.So(strings.Index(string(text), `"car"`), convey.ShouldBeLessThan,
				strings.Index(string(text), `"truck"`))
		})

		convey.Convey("splits the records into shards", func() {
			convey.So(WriteTFRecord(recordPath, labelMapPath, data, 2), convey.ShouldBeNil)

			for _, suffix := range []string{"-00000-of-00002", "-00001-of-00002"} {
				info, err := os.Stat(recordPath + suffix)
				convey.So(err, convey.ShouldBeNil)
				convey.So(info.Size(), convey.ShouldBeGreaterThan, 0)
			}
			_, err := os.Stat(recordPath)
			convey.So(os.IsNotExist(err), convey.ShouldBeTrue)
		})

		convey.Convey("describes the encoded image and normalises by the annotated size", func() {
			img := data[0]
			img.Size = ImageSize{Width: 32, Height: 16, Depth: 3}
			labelMap := &tfRecordLabelMap{ids: make(map[string]int32), nextID: 1}

			rec, err := toTFRecord(img, labelMap)
			convey.So(err, convey.ShouldBeNil)
			convey.So(rec.FilePath, convey.ShouldEqual, imgPath)
			convey.So(rec.Annotations["image/width"], convey.ShouldEqual, 64)
			convey.So(rec.Annotations["image/height"], convey.ShouldEqual, 32)
			convey.So(rec.Annotations["image/filename"], convey.ShouldEqual, "img1.png")
			convey.So(rec.Annotations["image/format"], convey.ShouldEqual, "png")
			convey.So(rec.Annotations["image/object/bbox/xmin"], convey.ShouldResemble, []float32{0.25})
			convey.So(rec.Annotations["image/object/bbox/xmax"], convey.ShouldResemble, []float32{1})
			convey.So(rec.Annotations["image/object/bbox/ymin"], convey.ShouldResemble, []float32{0.25})
			convey.So(rec.Annotations["image/object/bbox/ymax"], convey.ShouldResemble, []float32{1})
			convey.So(rec.Annotations["image/object/class/label"], convey.ShouldResemble, []int64{1})
		})

		convey.Convey("rejects an invalid label map", func() {
			convey.So(ioutil.WriteFile(labelMapPath, []byte("item { name: \"car\" id: 0 }\n"), 0644),
				convey.ShouldBeNil)
			convey.So(WriteTFRecord(recordPath, labelMapPath, data, 1), convey.ShouldNotBeNil)
		})
	})
}

func TestTFRecordLabelMap(t *testing.T) {
	convey.Convey("assign label IDs", t, func() {
		m := &tfRecordLabelMap{ids: map[string]int32{"car": 3}, nextID: 4}
		convey.So(m.id("car"), convey.ShouldEqual, 3)
		convey.So(m.id("bus"), convey.ShouldEqual, 4)
		convey.So(m.id("truck"), convey.ShouldEqual, 5)
		convey.So(m.id("bus"), convey.ShouldEqual, 4)
	})
}
