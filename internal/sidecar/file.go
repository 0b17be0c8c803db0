package sidecar

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Extension is the sidecar file extension.
const Extension = ".txt"

// PathFor returns the sidecar path for an image: same directory, same base
// name, Extension instead of the image extension.
func PathFor(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return strings.TrimSuffix(imagePath, ext) + Extension
}

// Loaded is a decoded sidecar with the facts needed to decide whether it
// must be (re)initialized.
type Loaded struct {
	Record
	Exists   bool
	Size     int64
	Encoding string
}

// Valid reports whether the file exists, is non-empty and carries a full
// header.
func (l Loaded) Valid() bool {
	return HasValidHeader(l.Record, l.Exists, l.Size)
}

// HasValidHeader reports whether a sidecar validly exists. The batch
// labeler never overwrites one that does.
func HasValidHeader(rec Record, exists bool, size int64) bool {
	return exists && size > 0 && len(rec.Header) >= HeaderLines
}

// ReadFile loads the sidecar at path. A missing file is not an error; it
// yields Empty with Exists false.
func ReadFile(path string) (Loaded, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // G304: sidecar paths derive from the image catalog
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Loaded{Record: Empty()}, nil
		}
		return Loaded{}, fmt.Errorf("read sidecar %s: %w", path, err)
	}

	text, enc := decodeText(raw)
	return Loaded{
		Record:   decodeLines(splitLines(text)),
		Exists:   true,
		Size:     int64(len(raw)),
		Encoding: enc,
	}, nil
}

// WriteFile writes rec to path as UTF-8. The header is normalized to
// HeaderLines lines. The write goes to a temporary file in the same
// directory which is then renamed over path, so readers never observe a
// partial file.
func WriteFile(path string, rec Record, rounding Rounding) error {
	rec.Header = NormalizeHeader(rec.Header)
	data := EncodeWith(rec, rounding)

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp sidecar: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write sidecar: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close sidecar: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil { //nolint:gosec // sidecars are shared text files
		cleanup()
		return fmt.Errorf("chmod sidecar: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace sidecar %s: %w", path, err)
	}
	return nil
}

// Initialize writes a fresh sidecar with header and the sentinel entry.
func Initialize(path string, header []string) error {
	return WriteFile(path, Record{Header: header, Coordinates: []Entry{NoneEntry}}, Truncate)
}
