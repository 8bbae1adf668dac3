package boxyvoc

// PASCAL VOC specific functionality.

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
)

// VOCBndBox is the bounding box of a VOC object. The children are written in the order
// xmin, xmax, ymin, ymax.
type VOCBndBox struct {
	XMin int `xml:"xmin"`
	XMax int `xml:"xmax"`
	YMin int `xml:"ymin"`
	YMax int `xml:"ymax"`
}

// VOCObject is a single annotation within a VOC file.
type VOCObject struct {
	Name   string    `xml:"name"`
	BndBox VOCBndBox `xml:"bndbox"`
}

// VOCAnnotation defines the VOC annotation structure for a single image.
type VOCAnnotation struct {
	XMLName  xml.Name    `xml:"annotation"`
	Filename string      `xml:"filename"`
	Width    int         `xml:"width"`
	Height   int         `xml:"height"`
	Depth    int         `xml:"depth"`
	Objects  []VOCObject `xml:"object"`

	FilePath string `xml:"-"` // The annotated image path, used to name the output file.
}

// ToVOC converts the intermediate representation to VOC format.
func ToVOC(data []AnnotatedImage) []VOCAnnotation {
	vocData := make([]VOCAnnotation, 0, len(data))
	for _, img := range data {
		vocImg := VOCAnnotation{
			Filename: baseName(img.Path),
			Width:    img.Size.Width,
			Height:   img.Size.Height,
			Depth:    img.Size.Depth,
			Objects:  make([]VOCObject, len(img.Objects)),
			FilePath: img.Path,
		}
		for i, o := range img.Objects {
			vocImg.Objects[i] = VOCObject{
				Name: o.Name,
				BndBox: VOCBndBox{
					XMin: o.BndBox.XMin,
					XMax: o.BndBox.XMax,
					YMin: o.BndBox.YMin,
					YMax: o.BndBox.YMax,
				},
			}
		}
		vocData = append(vocData, vocImg)
	}

	return vocData
}

// EncodeVOC returns the XML document for a single annotation.
func EncodeVOC(a VOCAnnotation) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(a); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteVOC writes data to dirPath, one file per element, named after the image file with the
// extension replaced by ".xml". Existing files are overwritten.
func WriteVOC(dirPath string, data []VOCAnnotation) error {
	dirInfo, err := os.Stat(dirPath)
	if err != nil {
		return fmt.Errorf("cannot access directory %q: %v", dirPath, err)
	}
	if !dirInfo.IsDir() {
		return fmt.Errorf("not a directory: %q", dirPath)
	}

	written := make(map[string]string, len(data))
	for _, a := range data {
		name, err := vocFileName(a.FilePath)
		if err != nil {
			return err
		}
		if prev, found := written[name]; found {
			log.Printf("%q overwrites the annotations of %q in %s", a.FilePath, prev, name)
		}
		written[name] = a.FilePath

		enc, err := EncodeVOC(a)
		if err != nil {
			return fmt.Errorf("cannot encode the annotations of %q: %v", a.FilePath, err)
		}

		filePath := filepath.Join(dirPath, name)
		if err := ioutil.WriteFile(filePath, enc, 0644); err != nil {
			return fmt.Errorf("cannot write file %q: %v", filePath, err)
		}
	}

	return nil
}
