package boxyvoc

import (
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ValidatePath returns the absolute, cleaned form of path if a file or directory exists there.
func ValidatePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("could not read path: %s: %v", path, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("could not read path: %s", path)
	}
	return abs, nil
}

// ValidateDir works like ValidatePath but also requires a directory.
func ValidateDir(path string) (string, error) {
	abs, err := ValidatePath(path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", path)
	}
	return abs, nil
}

// ParseResizeFactor parses s as a resize factor, which must be a finite number greater than zero.
func ParseResizeFactor(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid resize factor %q: %v", s, err)
	}
	if err := checkResizeFactor(f); err != nil {
		return 0, err
	}
	return f, nil
}

// checkResizeFactor returns an error unless f is finite and greater than zero.
func checkResizeFactor(f float64) error {
	if !(f > 0) || math.IsInf(f, 1) {
		return fmt.Errorf("invalid resize factor %v", f)
	}
	return nil
}

// roundToInt rounds v to the nearest integer, with ties rounded to even. It returns false if the
// result does not fit into an int.
func roundToInt(v float64) (int, bool) {
	r := math.RoundToEven(v)
	if math.IsNaN(r) || r < float64(math.MinInt) || r >= float64(math.MaxInt) {
		return 0, false
	}
	return int(r), true
}

// baseName returns the final segment of the annotation path. Both slash and the OS separator are
// accepted as separators.
func baseName(path string) string {
	return filepath.Base(filepath.Clean(filepath.FromSlash(path)))
}

// vocFileName returns the file name of the VOC annotation for the image at path, i.e. the final
// path segment with its extension replaced by ".xml". A leading or trailing dot does not delimit
// an extension. Paths without a file name are rejected.
func vocFileName(path string) (string, error) {
	name := baseName(path)
	if path == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("no file name in %q", path)
	}

	if i := strings.LastIndex(name, "."); i > 0 && i < len(name)-1 {
		name = name[0:i]
	}
	return name + ".xml", nil
}

// readFile uses ioutil.ReadAll to read the file at path.
func readFile(path string) (data []byte, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer closeWithErrCheck(f, &err)

	data, err = ioutil.ReadAll(f)
	if err != nil {
		return nil, err
	}

	return data, nil
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
