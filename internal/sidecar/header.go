package sidecar

import (
	"fmt"
	"strings"

	"github.com/MeKo-Tech/gcpmark/internal/geoinfo"
)

// HeaderFor renders the standard 8-line header for a newly initialized
// sidecar.
func HeaderFor(filename string, g geoinfo.GeoInfo) []string {
	return []string{
		"Filename: " + filename,
		"Latitude: " + geoinfo.FormatOptional(g.Latitude),
		"Longitude: " + geoinfo.FormatOptional(g.Longitude),
		fmt.Sprintf("Altitude: %s meters", geoinfo.FormatOptional(g.Altitude)),
		"Gimbal Orientation:",
		fmt.Sprintf("  Roll:  %s°", g.GimbalRoll),
		fmt.Sprintf("  Pitch: %s°", g.GimbalPitch),
		fmt.Sprintf("  Yaw:   %s°", g.GimbalYaw),
	}
}

// NormalizeHeader makes lines safe to write as exactly HeaderLines header
// lines: terminators are stripped, embedded newlines flattened, and the
// slice padded with blanks or truncated.
func NormalizeHeader(lines []string) []string {
	out := make([]string, HeaderLines)
	for i := 0; i < HeaderLines && i < len(lines); i++ {
		out[i] = headerLine(lines[i])
	}
	return out
}

// headerLine strips trailing terminators from l and flattens embedded ones
// to spaces, so that l decodes back as exactly one identical line.
func headerLine(l string) string {
	l = strings.TrimRight(l, "\r\n")
	l = strings.ReplaceAll(l, "\r\n", " ")
	return strings.ReplaceAll(l, "\n", " ")
}
