package geoinfo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

const (
	// xmpScanLimit bounds how much of the file is searched for the XMP
	// packet, which sits in the APP1 segment ahead of the image data.
	xmpScanLimit = 4 << 20

	djiPrefix = "drone-dji:"
)

var (
	xmpDescriptionStart = []byte("<rdf:Description ")
	xmpDescriptionEnd   = []byte("</rdf:Description>")

	djiAttr    = regexp.MustCompile(`drone-dji:([A-Za-z0-9_]+)\s*=\s*"([^"]*)"`)
	djiElement = regexp.MustCompile(`<drone-dji:([A-Za-z0-9_]+)>([^<]*)</drone-dji:[A-Za-z0-9_]+>`)
)

// ExifProvider reads GPS tags from EXIF and gimbal angles from the DJI XMP
// block.
type ExifProvider struct{}

// NewExifProvider creates an EXIF/XMP provider.
func NewExifProvider() *ExifProvider {
	return &ExifProvider{}
}

// Extract implements Provider.
func (p *ExifProvider) Extract(imagePath string) GeoInfo {
	var info GeoInfo

	data, err := readHead(imagePath, xmpScanLimit)
	if err != nil {
		slog.Warn("Failed to read image metadata", "file", imagePath, "error", err)
		return info
	}

	if err := applyExif(&info, data); err != nil {
		slog.Debug("No EXIF GPS data", "file", imagePath, "error", err)
	}

	tags := ParseDJITags(data)
	applyDJI(&info, tags)
	return info
}

func readHead(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // G304: image paths come from the catalog
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(io.LimitReader(f, limit))
}

func applyExif(info *GeoInfo, data []byte) error {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode exif: %w", err)
	}

	var errs []error
	if lat, long, err := x.LatLong(); err == nil {
		info.Latitude = Float(lat)
		info.Longitude = Float(long)
	} else {
		errs = append(errs, err)
	}

	if tag, err := x.Get(exif.GPSAltitude); err == nil {
		num, den, err := tag.Rat2(0)
		if err == nil && den != 0 {
			alt := float64(num) / float64(den)
			if ref, err := x.Get(exif.GPSAltitudeRef); err == nil {
				if v, err := ref.Int(0); err == nil && v == 1 {
					alt = -alt
				}
			}
			info.Altitude = Float(alt)
		}
	} else {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ParseDJITags returns every drone-dji attribute or element found in the
// first rdf:Description block of data.
func ParseDJITags(data []byte) map[string]string {
	start := bytes.Index(data, xmpDescriptionStart)
	if start < 0 {
		return nil
	}
	block := data[start:]
	if end := bytes.Index(block, xmpDescriptionEnd); end >= 0 {
		block = block[:end+len(xmpDescriptionEnd)]
	}

	tags := make(map[string]string)
	for _, m := range djiAttr.FindAllSubmatch(block, -1) {
		tags[string(m[1])] = strings.TrimSpace(string(m[2]))
	}
	for _, m := range djiElement.FindAllSubmatch(block, -1) {
		if _, ok := tags[string(m[1])]; !ok {
			tags[string(m[1])] = strings.TrimSpace(string(m[2]))
		}
	}
	return tags
}

func applyDJI(info *GeoInfo, tags map[string]string) {
	for k, v := range tags {
		switch k {
		case "GimbalRollDegree":
			info.GimbalRoll = ParseAngle(v)
		case "GimbalPitchDegree":
			info.GimbalPitch = ParseAngle(v)
		case "GimbalYawDegree":
			info.GimbalYaw = ParseAngle(v)
		default:
			if info.Extra == nil {
				info.Extra = make(map[string]string)
			}
			info.Extra[djiPrefix+k] = v
		}
	}
}
