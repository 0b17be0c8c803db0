package imageio

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// DiscoverOptions narrows which files Discover returns. Patterns are
// matched against the base name.
type DiscoverOptions struct {
	Recursive bool
	Include   []string
	Exclude   []string
}

// Discover returns the supported images under dir, sorted by path.
func Discover(dir string, opts DiscoverOptions) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !opts.Recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if IsSupported(path) && shouldInclude(path, opts.Include, opts.Exclude) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// ListNames returns the base names of the supported images directly in dir,
// sorted.
func ListNames(dir string) ([]string, error) {
	paths, err := Discover(dir, DiscoverOptions{})
	if err != nil {
		return nil, err
	}
	names := make([]string, len(paths))
	for i, p := range paths {
		names[i] = filepath.Base(p)
	}
	return names, nil
}

func shouldInclude(path string, include, exclude []string) bool {
	if matchesAny(path, exclude) {
		return false
	}
	if len(include) == 0 {
		return true
	}
	return matchesAny(path, include)
}

func matchesAny(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
