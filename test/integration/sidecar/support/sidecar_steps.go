package support

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/MeKo-Tech/gcpmark/internal/geoinfo"
	"github.com/MeKo-Tech/gcpmark/internal/geometry"
	"github.com/MeKo-Tech/gcpmark/internal/session"
	"github.com/MeKo-Tech/gcpmark/internal/sidecar"
)

// anImage writes a small grey JPEG or PNG into the scenario directory.
func (testCtx *TestContext) anImage(name string) error {
	img := imaging.New(64, 48, color.NRGBA{R: 128, G: 128, B: 128, A: 255})
	if err := imaging.Save(img, testCtx.Path(name)); err != nil {
		return fmt.Errorf("failed to write image %s: %w", name, err)
	}
	return nil
}

func (testCtx *TestContext) theSidecarContains(image string, doc *godog.DocString) error {
	return os.WriteFile(testCtx.SidecarPath(image), []byte(doc.Content+"\n"), 0o600)
}

func (testCtx *TestContext) theSidecarIsEncodedAsGB18030AndContains(image string, doc *godog.DocString) error {
	raw, err := simplifiedchinese.GB18030.NewEncoder().String(doc.Content + "\n")
	if err != nil {
		return fmt.Errorf("failed to encode sidecar: %w", err)
	}
	return os.WriteFile(testCtx.SidecarPath(image), []byte(raw), 0o600)
}

func (testCtx *TestContext) theSidecarIsEmpty(image string) error {
	return os.WriteFile(testCtx.SidecarPath(image), nil, 0o600)
}

// iWriteTheseCoordinates writes a sidecar with the standard header and the
// points of a | x | y | target | table. A blank target writes an untagged
// line.
func (testCtx *TestContext) iWriteTheseCoordinates(image string, table *godog.Table) error {
	pts, err := parsePointTable(table)
	if err != nil {
		return err
	}
	rec := sidecar.Record{
		Header:      sidecar.HeaderFor(image, geoinfo.GeoInfo{}),
		Coordinates: sidecar.Normalize(sidecar.Entries(pts)),
	}
	testCtx.LastError = sidecar.WriteFile(testCtx.SidecarPath(image), rec, sidecar.Truncate)
	return testCtx.LastError
}

func (testCtx *TestContext) iReadTheSidecarOf(image string) error {
	testCtx.LastLoaded, testCtx.LastError = sidecar.ReadFile(testCtx.SidecarPath(image))
	return testCtx.LastError
}

func (testCtx *TestContext) theSidecarFileShouldBe(image string, doc *godog.DocString) error {
	raw, err := os.ReadFile(testCtx.SidecarPath(image))
	if err != nil {
		return fmt.Errorf("failed to read sidecar: %w", err)
	}
	if diff := cmp.Diff(doc.Content+"\n", string(raw)); diff != "" {
		return fmt.Errorf("sidecar content mismatch (-want +got):\n%s", diff)
	}
	return nil
}

func (testCtx *TestContext) theSidecarShouldBeValid(not string) error {
	want := not == ""
	if testCtx.LastLoaded.Valid() != want {
		return fmt.Errorf("expected valid=%t, got %t (exists=%t, header lines=%d)",
			want, !want, testCtx.LastLoaded.Exists, len(testCtx.LastLoaded.Header))
	}
	return nil
}

func (testCtx *TestContext) theHeaderShouldHaveLines(n int) error {
	if got := len(testCtx.LastLoaded.Header); got != n {
		return fmt.Errorf("expected %d header lines, got %d", n, got)
	}
	return nil
}

func (testCtx *TestContext) headerLineShouldBe(n int, want string) error {
	header := testCtx.LastLoaded.Header
	if n < 1 || n > len(header) {
		return fmt.Errorf("header has no line %d", n)
	}
	if header[n-1] != want {
		return fmt.Errorf("header line %d: expected %q, got %q", n, want, header[n-1])
	}
	return nil
}

func (testCtx *TestContext) theEncodingShouldBe(want string) error {
	if testCtx.LastLoaded.Encoding != want {
		return fmt.Errorf("expected encoding %q, got %q", want, testCtx.LastLoaded.Encoding)
	}
	return nil
}

func (testCtx *TestContext) theCoordinatesShouldBe(table *godog.Table) error {
	want, err := parsePointTable(table)
	if err != nil {
		return err
	}
	got := sidecar.Points(testCtx.LastLoaded.Coordinates)
	if diff := cmp.Diff(want, got); diff != "" {
		return fmt.Errorf("coordinates mismatch (-want +got):\n%s", diff)
	}
	return nil
}

func (testCtx *TestContext) theCoordinatesShouldBeTheSentinel() error {
	coords := testCtx.LastLoaded.Coordinates
	if len(coords) != 1 || !coords[0].None {
		return fmt.Errorf("expected only the sentinel, got %v", coords)
	}
	return nil
}

func (testCtx *TestContext) anAnnotationSessionOverTheDirectory() error {
	var err error
	testCtx.Session, err = session.New(session.Config{
		Dir: testCtx.TempDir,
		Geo: geoinfo.ProviderFunc(func(string) geoinfo.GeoInfo { return geoinfo.GeoInfo{} }),
	})
	return err
}

func (testCtx *TestContext) iOpenImageInTheSession(index int) error {
	if testCtx.Session == nil {
		return errors.New("no session opened")
	}
	testCtx.LastImage, testCtx.LastError = testCtx.Session.GetImage(context.Background(), index)
	return nil
}

func (testCtx *TestContext) theImageShouldOpen() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("expected image to open, got: %w", testCtx.LastError)
	}
	return nil
}

func (testCtx *TestContext) theImageShouldNotBeFound() error {
	if !session.IsNotFound(testCtx.LastError) {
		return fmt.Errorf("expected a not-found error, got %v", testCtx.LastError)
	}
	return nil
}

func (testCtx *TestContext) iSnapshotTheSidecarOf(image string) error {
	raw, err := os.ReadFile(testCtx.SidecarPath(image))
	if err != nil {
		return fmt.Errorf("failed to read sidecar: %w", err)
	}
	testCtx.LastSnapshot = string(raw)
	return nil
}

func (testCtx *TestContext) theSidecarShouldBeUnchanged(image string) error {
	raw, err := os.ReadFile(testCtx.SidecarPath(image))
	if err != nil {
		return fmt.Errorf("failed to read sidecar: %w", err)
	}
	if diff := cmp.Diff(testCtx.LastSnapshot, string(raw)); diff != "" {
		return fmt.Errorf("sidecar changed (-before +after):\n%s", diff)
	}
	return nil
}

func (testCtx *TestContext) theOpenedHeaderShouldContain(text string) error {
	if testCtx.LastImage == nil {
		return errors.New("no image opened")
	}
	for _, l := range testCtx.LastImage.Header {
		if strings.Contains(l, text) {
			return nil
		}
	}
	return fmt.Errorf("header %q does not contain %q", testCtx.LastImage.Header, text)
}

func (testCtx *TestContext) theOpenedImageShouldHavePoints(n int) error {
	if testCtx.LastImage == nil {
		return errors.New("no image opened")
	}
	if got := len(sidecar.Points(testCtx.LastImage.Coordinates)); got != n {
		return fmt.Errorf("expected %d points, got %d", n, got)
	}
	return nil
}

// parsePointTable reads a table whose first row is the header
// | x | y | target |.
func parsePointTable(table *godog.Table) ([]geometry.TargetPoint, error) {
	if len(table.Rows) == 0 {
		return nil, errors.New("empty coordinates table")
	}
	pts := make([]geometry.TargetPoint, 0, len(table.Rows)-1)
	for i, row := range table.Rows[1:] {
		if len(row.Cells) < 2 {
			return nil, fmt.Errorf("row %d: expected x and y", i+1)
		}
		x, err := strconv.ParseFloat(row.Cells[0].Value, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid x: %w", i+1, err)
		}
		y, err := strconv.ParseFloat(row.Cells[1].Value, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid y: %w", i+1, err)
		}
		if len(row.Cells) < 3 || strings.TrimSpace(row.Cells[2].Value) == "" {
			pts = append(pts, geometry.Untagged(x, y))
			continue
		}
		id, err := strconv.Atoi(row.Cells[2].Value)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid target: %w", i+1, err)
		}
		pts = append(pts, geometry.Tagged(x, y, id))
	}
	return pts, nil
}

// RegisterSidecarSteps registers the sidecar file and session steps.
func (testCtx *TestContext) RegisterSidecarSteps(sc *godog.ScenarioContext) {
	sc.Step(`^an image "([^"]*)"$`, testCtx.anImage)
	sc.Step(`^the sidecar of "([^"]*)" contains:$`, testCtx.theSidecarContains)
	sc.Step(`^the sidecar of "([^"]*)" is encoded as GB18030 and contains:$`, testCtx.theSidecarIsEncodedAsGB18030AndContains)
	sc.Step(`^the sidecar of "([^"]*)" is empty$`, testCtx.theSidecarIsEmpty)
	sc.Step(`^I write these coordinates to the sidecar of "([^"]*)":$`, testCtx.iWriteTheseCoordinates)
	sc.Step(`^I read the sidecar of "([^"]*)"$`, testCtx.iReadTheSidecarOf)
	sc.Step(`^the sidecar file of "([^"]*)" should be:$`, testCtx.theSidecarFileShouldBe)
	sc.Step(`^the sidecar should (not )?be valid$`, testCtx.theSidecarShouldBeValid)
	sc.Step(`^the header should have (\d+) lines$`, testCtx.theHeaderShouldHaveLines)
	sc.Step(`^header line (\d+) should be "([^"]*)"$`, testCtx.headerLineShouldBe)
	sc.Step(`^the encoding should be "([^"]*)"$`, testCtx.theEncodingShouldBe)
	sc.Step(`^the coordinates should be:$`, testCtx.theCoordinatesShouldBe)
	sc.Step(`^the coordinates should be the sentinel only$`, testCtx.theCoordinatesShouldBeTheSentinel)

	sc.Step(`^an annotation session over the directory$`, testCtx.anAnnotationSessionOverTheDirectory)
	sc.Step(`^I open image (-?\d+) in the session$`, testCtx.iOpenImageInTheSession)
	sc.Step(`^the image should open$`, testCtx.theImageShouldOpen)
	sc.Step(`^the image should not be found$`, testCtx.theImageShouldNotBeFound)
	sc.Step(`^I snapshot the sidecar of "([^"]*)"$`, testCtx.iSnapshotTheSidecarOf)
	sc.Step(`^the sidecar of "([^"]*)" should be unchanged$`, testCtx.theSidecarShouldBeUnchanged)
	sc.Step(`^the opened header should contain "([^"]*)"$`, testCtx.theOpenedHeaderShouldContain)
	sc.Step(`^the opened image should have (\d+) points$`, testCtx.theOpenedImageShouldHavePoints)
}
