package boxyvoc

// Boxy vehicle annotation specific functionality.

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
)

// BoxyAABB is the axis-aligned bounding box of a vehicle. The fields are pointers so that
// missing coordinates can be told apart from zero.
type BoxyAABB struct {
	X1 *float64 `json:"x1"`
	X2 *float64 `json:"x2"`
	Y1 *float64 `json:"y1"`
	Y2 *float64 `json:"y2"`
}

// BoxyVehicle is a single vehicle annotation. Only the AABB is used.
type BoxyVehicle struct {
	AABB *BoxyAABB `json:"AABB"`
}

// BoxyImageMetadata defines the Boxy annotation structure for a single image. A nil Vehicles
// means the key is missing (or null), while an empty slice is an image without vehicles.
type BoxyImageMetadata struct {
	Vehicles []BoxyVehicle `json:"vehicles"`
}

// ProgressOutput receives the running progress indicator of ParseBoxy.
var ProgressOutput io.Writer = os.Stderr

// MissingFieldError is the reason for skipping an image whose metadata lacks an expected field.
type MissingFieldError struct {
	Field string // The path of the missing field, e.g. vehicles[0].AABB.x1.
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %q", e.Field)
}

// OutOfRangeError is the reason for skipping an image with a coordinate that, after rescaling,
// does not fit into an int.
type OutOfRangeError struct {
	Field string  // The path of the coordinate, e.g. vehicles[0].AABB.x1.
	Value float64 // The coordinate as given by the source.
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("coordinate out of range: %s=%v", e.Field, e.Value)
}

// boxyEntry is one top-level key of the source document with its still encoded value.
type boxyEntry struct {
	path string
	raw  json.RawMessage
}

// parseResult is either a parsed image or the reason for skipping it.
type parseResult struct {
	image AnnotatedImage
	skip  error
}

// FromBoxy reads and parses Boxy annotations from the file at path.
func FromBoxy(path string, resizeFactor float64) ([]AnnotatedImage, error) {
	log.Printf("Loading JSON file: %s", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := ParseBoxy(f, resizeFactor)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Boxy input from %q: %v", path, err)
	}
	return data, nil
}

// ParseBoxy parses a Boxy annotation document from r and converts it to the intermediate
// representation, in document order.
//
// Every coordinate is divided by resizeFactor and rounded to the nearest integer, with ties
// rounded to even. Images with missing or malformed fields are logged and skipped.
func ParseBoxy(r io.Reader, resizeFactor float64) ([]AnnotatedImage, error) {
	if err := checkResizeFactor(resizeFactor); err != nil {
		return nil, err
	}

	entries, err := decodeBoxyEntries(r)
	if err != nil {
		return nil, err
	}

	results := make([]parseResult, len(entries))
	for i, e := range entries {
		results[i] = parseBoxyImage(e, resizeFactor)
		_, _ = fmt.Fprintf(ProgressOutput, "\rConverting image: %d/%d", i+1, len(entries))
	}
	if len(entries) > 0 {
		_, _ = fmt.Fprintln(ProgressOutput)
	}

	data := make([]AnnotatedImage, 0, len(results))
	for i, res := range results {
		if res.skip != nil {
			log.Printf("Could not parse image %q: %v", entries[i].path, res.skip)
			continue
		}
		data = append(data, res.image)
	}

	log.Printf("Successfully parsed: %d images", len(data))
	return data, nil
}

// decodeBoxyEntries reads the top-level JSON object from r and returns its members in document
// order. A repeated key keeps its first position and takes the last value.
func decodeBoxyEntries(r io.Reader) ([]boxyEntry, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("the top level is not a JSON object")
	}

	var entries []boxyEntry
	index := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid value for %q: %v", key, err)
		}

		if i, found := index[key]; found {
			entries[i].raw = raw
			continue
		}
		index[key] = len(entries)
		entries = append(entries, boxyEntry{path: key, raw: raw})
	}

	// Consume the closing brace and make sure nothing follows.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after the top-level object")
	}

	return entries, nil
}

// parseBoxyImage converts the metadata of a single image.
func parseBoxyImage(e boxyEntry, resizeFactor float64) parseResult {
	var meta BoxyImageMetadata
	if err := json.Unmarshal(e.raw, &meta); err != nil {
		return parseResult{skip: fmt.Errorf("unexpected value: %v", err)}
	}
	if meta.Vehicles == nil {
		return parseResult{skip: &MissingFieldError{Field: "vehicles"}}
	}

	if _, err := vocFileName(e.path); err != nil {
		return parseResult{skip: err}
	}

	img := AnnotatedImage{
		Objects: make([]Object, 0, len(meta.Vehicles)),
		Path:    e.path,
		Size:    DefaultImageSize(),
	}
	for i, v := range meta.Vehicles {
		if v.AABB == nil {
			return parseResult{skip: &MissingFieldError{Field: fmt.Sprintf("vehicles[%d].AABB", i)}}
		}

		// Scale the corners in the order x1, x2, y1, y2, i.e. xmin, xmax, ymin, ymax.
		var bounds [4]int
		coords := []struct {
			name  string
			value *float64
		}{{"x1", v.AABB.X1}, {"x2", v.AABB.X2}, {"y1", v.AABB.Y1}, {"y2", v.AABB.Y2}}
		for j, c := range coords {
			field := fmt.Sprintf("vehicles[%d].AABB.%s", i, c.name)
			if c.value == nil {
				return parseResult{skip: &MissingFieldError{Field: field}}
			}
			scaled, ok := roundToInt(*c.value / resizeFactor)
			if !ok {
				return parseResult{skip: &OutOfRangeError{Field: field, Value: *c.value}}
			}
			bounds[j] = scaled
		}

		img.Objects = append(img.Objects, Object{
			BndBox: BndBox{XMin: bounds[0], XMax: bounds[1], YMin: bounds[2], YMax: bounds[3]},
			Name:   VehicleLabel,
		})
	}

	return parseResult{image: img}
}
