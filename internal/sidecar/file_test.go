package sidecar

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/gcpmark/internal/geoinfo"
	"github.com/MeKo-Tech/gcpmark/internal/geometry"
)

func TestPathFor(t *testing.T) {
	tests := map[string]string{
		"/data/DJI_0001.JPG":      "/data/DJI_0001.txt",
		"/data/a.b.png":           "/data/a.b.txt",
		"relative/img.jpeg":       "relative/img.txt",
		"/data/no-extension":      "/data/no-extension.txt",
		"/data/archive.tar/x.jpg": "/data/archive.tar/x.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, PathFor(in), in)
	}
}

func TestReadFile_Missing(t *testing.T) {
	loaded, err := ReadFile(filepath.Join(t.TempDir(), "absent.txt"))

	require.NoError(t, err)
	assert.False(t, loaded.Exists)
	assert.False(t, loaded.Valid())
	assert.Empty(t, loaded.Header)
	assert.Equal(t, []Entry{NoneEntry}, loaded.Coordinates)
}

func TestReadFile_Validity(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		valid   bool
	}{
		{"empty file", "", false},
		{"short header", "Filename: a.jpg\nLatitude: N/A\n", false},
		{"full header without body", string(withHeader("")), true},
		{"full header with points", string(withHeader("x 1 y 2\n")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".txt")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			loaded, err := ReadFile(path)
			require.NoError(t, err)
			assert.True(t, loaded.Exists)
			assert.Equal(t, tt.valid, loaded.Valid())
		})
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.txt")
	rec := Record{
		Header: eightLineHeader(),
		Coordinates: []Entry{
			PointEntry(geometry.Untagged(100.7, 200.2)),
			PointEntry(geometry.Tagged(300, 400, 2)),
		},
	}

	require.NoError(t, WriteFile(path, rec, Truncate))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(withHeader("x 100 y 200\n靶标 2: x 300 y 400\n")), string(raw))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	loaded, err := ReadFile(path)
	require.NoError(t, err)
	assert.True(t, loaded.Valid())
	assert.Equal(t, encodingUTF8, loaded.Encoding)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestWriteFile_NormalizesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.txt")

	require.NoError(t, WriteFile(path, Record{Header: []string{"one\n", "two\r\nlines"}}, Truncate))

	loaded, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two lines", "", "", "", "", "", ""}, loaded.Header)
	assert.Equal(t, []Entry{NoneEntry}, loaded.Coordinates)
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "nope", "img.txt"), Empty(), Truncate)
	assert.Error(t, err)
}

func TestNormalizeHeader_Truncates(t *testing.T) {
	in := make([]string, 12)
	for i := range in {
		in[i] = string(rune('a' + i))
	}
	assert.Equal(t, in[:HeaderLines], NormalizeHeader(in))
}

func TestHeaderFor(t *testing.T) {
	t.Run("full geo info", func(t *testing.T) {
		g := geoinfo.GeoInfo{
			Latitude:    geoinfo.Float(31.25),
			Longitude:   geoinfo.Float(121),
			Altitude:    geoinfo.Float(100),
			GimbalRoll:  geoinfo.Degrees(0),
			GimbalPitch: geoinfo.Degrees(-90),
			GimbalYaw:   geoinfo.ParseAngle("+12.50"),
		}

		assert.Equal(t, []string{
			"Filename: DJI_0001.JPG",
			"Latitude: 31.25",
			"Longitude: 121.0",
			"Altitude: 100.0 meters",
			"Gimbal Orientation:",
			"  Roll:  0.0°",
			"  Pitch: -90.0°",
			"  Yaw:   12.5°",
		}, HeaderFor("DJI_0001.JPG", g))
	})

	t.Run("missing geo info", func(t *testing.T) {
		h := HeaderFor("a.jpg", geoinfo.GeoInfo{GimbalYaw: geoinfo.ParseAngle("unknown")})

		require.Len(t, h, HeaderLines)
		assert.Equal(t, "Latitude: N/A", h[1])
		assert.Equal(t, "Altitude: N/A meters", h[3])
		assert.Equal(t, "  Roll:  N/A°", h[5])
		assert.Equal(t, "  Yaw:   unknown°", h[7])
	})
}

func TestInitialize_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.txt")
	header := HeaderFor("img.jpg", geoinfo.GeoInfo{})

	require.NoError(t, Initialize(path, header))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, Initialize(path, header))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
