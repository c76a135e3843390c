package result

import (
	"encoding/gob"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// SaveSnapshot writes a report, typically a partial one from an exhausted or
// stopped run, to path. Paths ending in .zst are zstd compressed.
func SaveSnapshot(path string, r *Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var w io.Writer = f
	if strings.HasSuffix(path, ".zst") {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return err
		}
		if err := gob.NewEncoder(zw).Encode(r); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	}
	return gob.NewEncoder(w).Encode(r)
}

// LoadSnapshot reads a report written by SaveSnapshot.
func LoadSnapshot(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rd io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		rd = zr
	}
	var r Report
	if err := gob.NewDecoder(rd).Decode(&r); err != nil {
		return nil, err
	}
	return &r, nil
}
