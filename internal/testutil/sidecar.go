package testutil

import (
	"path/filepath"
	"strings"
	"testing"
)

// SampleHeader is a complete 8-line sidecar header.
func SampleHeader(filename string) []string {
	return []string{
		"Filename: " + filename,
		"Latitude: 31.2304",
		"Longitude: 121.4737",
		"Altitude: 100.0 meters",
		"Gimbal Orientation:",
		"  Roll:  0.0°",
		"  Pitch: -90.0°",
		"  Yaw:   12.5°",
	}
}

// SidecarText joins header and body lines into sidecar file content.
func SidecarText(header []string, body ...string) string {
	var b strings.Builder
	for _, l := range append(append([]string{}, header...), body...) {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteSidecar writes the sidecar belonging to imageName in dir and returns
// its path.
func WriteSidecar(t *testing.T, dir, imageName string, header []string, body ...string) string {
	t.Helper()

	name := strings.TrimSuffix(imageName, filepath.Ext(imageName)) + ".txt"
	return WriteFile(t, dir, name, SidecarText(header, body...))
}
