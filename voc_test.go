package boxyvoc

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

const img1VOC = `<annotation>
  <filename>img1.png</filename>
  <width>1232</width>
  <height>1028</height>
  <depth>3</depth>
  <object>
    <name>car</name>
    <bndbox>
      <xmin>50</xmin>
      <xmax>100</xmax>
      <ymin>25</ymin>
      <ymax>75</ymax>
    </bndbox>
  </object>
</annotation>
`

func TestToVOC(t *testing.T) {
	convey.Convey("convert to VOC", t, func() {
		data := []AnnotatedImage{
			{
				Objects: []Object{
					{BndBox: BndBox{XMin: 1, XMax: 2, YMin: 3, YMax: 4}, Name: "car"},
					{BndBox: BndBox{XMin: 5, XMax: 6, YMin: 7, YMax: 8}, Name: "car"},
				},
				Path: "/a/b/c/IMG001.png",
				Size: ImageSize{Width: 640, Height: 480, Depth: 1},
			},
			{Path: "IMG002.png", Size: DefaultImageSize()},
		}

		vocData := ToVOC(data)
		convey.So(vocData, convey.ShouldHaveLength, 2)
		convey.So(vocData[0].Filename, convey.ShouldEqual, "IMG001.png")
		convey.So(vocData[0].FilePath, convey.ShouldEqual, "/a/b/c/IMG001.png")
		convey.So(vocData[0].Width, convey.ShouldEqual, 640)
		convey.So(vocData[0].Height, convey.ShouldEqual, 480)
		convey.So(vocData[0].Depth, convey.ShouldEqual, 1)
		convey.So(vocData[0].Objects, convey.ShouldResemble, []VOCObject{
			{Name: "car", BndBox: VOCBndBox{XMin: 1, XMax: 2, YMin: 3, YMax: 4}},
			{Name: "car", BndBox: VOCBndBox{XMin: 5, XMax: 6, YMin: 7, YMax: 8}},
		})
		convey.So(vocData[1].Objects, convey.ShouldBeEmpty)
	})
}

func TestEncodeVOC(t *testing.T) {
	convey.Convey("encode a VOC annotation", t, func() {
		convey.Convey("writes the fixed element order", func() {
			data, err := parseString(t,
				`{"img1.png": {"vehicles": [{"AABB": {"x1": 100, "x2": 200, "y1": 50, "y2": 150}}]}}`, 2)
			convey.So(err, convey.ShouldBeNil)

			enc, err := EncodeVOC(ToVOC(data)[0])
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(enc), convey.ShouldEqual, img1VOC)
		})

		convey.Convey("writes no object elements for an image without vehicles", func() {
			enc, err := EncodeVOC(ToVOC([]AnnotatedImage{{Path: "x.jpg", Size: DefaultImageSize()}})[0])
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(enc), convey.ShouldNotContainSubstring, "<object>")
			convey.So(string(enc), convey.ShouldContainSubstring, "<filename>x.jpg</filename>")
		})

		convey.Convey("escapes the file name", func() {
			enc, err := EncodeVOC(ToVOC([]AnnotatedImage{{Path: "a&b.png"}})[0])
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(enc), convey.ShouldContainSubstring, "<filename>a&amp;b.png</filename>")
		})
	})
}

func TestWriteVOC(t *testing.T) {
	convey.Convey("write VOC files", t, func() {
		dir, err := ioutil.TempDir("", "boxyvoc")
		convey.So(err, convey.ShouldBeNil)
		convey.Reset(func() {
			_ = os.RemoveAll(dir)
		})

		data, err := parseString(t, `{
			"/data/bag/img1.png": {"vehicles": [{"AABB": {"x1": 100, "x2": 200, "y1": 50, "y2": 150}}]},
			"/data/bag/img2.png": {}
		}`, 2)
		convey.So(err, convey.ShouldBeNil)
		vocData := ToVOC(data)

		convey.Convey("writes one file per parsed image", func() {
			convey.So(WriteVOC(dir, vocData), convey.ShouldBeNil)

			files, err := ioutil.ReadDir(dir)
			convey.So(err, convey.ShouldBeNil)
			convey.So(files, convey.ShouldHaveLength, 1)
			convey.So(files[0].Name(), convey.ShouldEqual, "img1.xml")

			content, err := ioutil.ReadFile(filepath.Join(dir, "img1.xml"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(content), convey.ShouldEqual, img1VOC)

			_, err = os.Stat(filepath.Join(dir, "img2.xml"))
			convey.So(os.IsNotExist(err), convey.ShouldBeTrue)
		})

		convey.Convey("produces identical files when run twice", func() {
			convey.So(WriteVOC(dir, vocData), convey.ShouldBeNil)
			first, err := ioutil.ReadFile(filepath.Join(dir, "img1.xml"))
			convey.So(err, convey.ShouldBeNil)

			convey.So(WriteVOC(dir, vocData), convey.ShouldBeNil)
			second, err := ioutil.ReadFile(filepath.Join(dir, "img1.xml"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(second, convey.ShouldResemble, first)
		})

		convey.Convey("overwrites existing files", func() {
			path := filepath.Join(dir, "img1.xml")
			stale := strings.Repeat("stale content\n", 100)
			convey.So(ioutil.WriteFile(path, []byte(stale), 0644), convey.ShouldBeNil)

			convey.So(WriteVOC(dir, vocData), convey.ShouldBeNil)
			content, err := ioutil.ReadFile(path)
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(content), convey.ShouldEqual, img1VOC)
		})

		convey.Convey("lets the last image win for identical file names", func() {
			dup := ToVOC([]AnnotatedImage{
				{Path: "a/img.png", Size: ImageSize{Width: 1, Height: 1, Depth: 3}},
				{Path: "b/img.jpg", Size: ImageSize{Width: 2, Height: 2, Depth: 3}},
			})
			convey.So(WriteVOC(dir, dup), convey.ShouldBeNil)

			content, err := ioutil.ReadFile(filepath.Join(dir, "img.xml"))
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(content), convey.ShouldContainSubstring, "<filename>img.jpg</filename>")
		})

		convey.Convey("fails for a missing directory", func() {
			err := WriteVOC(filepath.Join(dir, "missing"), vocData)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "cannot access directory")
		})

		convey.Convey("fails when the output path is a file", func() {
			path := filepath.Join(dir, "file")
			convey.So(ioutil.WriteFile(path, nil, 0644), convey.ShouldBeNil)
			err := WriteVOC(path, vocData)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "not a directory")
		})

		convey.Convey("fails for an image path without a file name", func() {
			bad := ToVOC([]AnnotatedImage{{Path: "", Size: DefaultImageSize()}})
			convey.So(WriteVOC(dir, bad), convey.ShouldNotBeNil)

			files, err := ioutil.ReadDir(dir)
			convey.So(err, convey.ShouldBeNil)
			convey.So(files, convey.ShouldBeEmpty)
		})
	})
}
