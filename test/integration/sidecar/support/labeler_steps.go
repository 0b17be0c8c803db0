package support

import (
	"fmt"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
	"github.com/MeKo-Tech/gcpmark/internal/labeler"
	"github.com/MeKo-Tech/gcpmark/internal/resolve"
)

func (testCtx *TestContext) theMinimumPointCountIs(n int) error {
	testCtx.MinPoints = n
	return nil
}

func (testCtx *TestContext) anImageYieldsPoints(n int) error {
	testCtx.PointCount = n
	return nil
}

func (testCtx *TestContext) iJudgeTheImage() error {
	testCtx.LastOutcome = labeler.Judge(testCtx.PointCount, testCtx.MinPoints)
	return nil
}

func (testCtx *TestContext) theImageShouldBe(want string) error {
	if string(testCtx.LastOutcome) != want {
		return fmt.Errorf("expected outcome %q, got %q", want, testCtx.LastOutcome)
	}
	return nil
}

// aDetectedTargetWithSpacing appends a 3x3 lattice tagged id anchored at
// (x0, y0). Its diagonal is 2*step*sqrt(2).
func (testCtx *TestContext) aDetectedTargetWithSpacing(id int, step, x0, y0 float64) error {
	for r := range 3 {
		for c := range 3 {
			testCtx.Points = append(testCtx.Points,
				geometry.Tagged(x0+float64(c)*step, y0+float64(r)*step, id))
		}
	}
	return nil
}

func (testCtx *TestContext) anUntaggedPoint(x, y float64) error {
	testCtx.Points = append(testCtx.Points, geometry.Untagged(x, y))
	return nil
}

func (testCtx *TestContext) iResolveThePoints() error {
	testCtx.Resolution = resolve.Resolve(testCtx.Points)
	return nil
}

func (testCtx *TestContext) resolutionShouldBeApplied(not string) error {
	want := not == ""
	if testCtx.Resolution.Applied != want {
		return fmt.Errorf("expected applied=%t, got %t", want, testCtx.Resolution.Applied)
	}
	return nil
}

func (testCtx *TestContext) onlyTargetShouldRemain(id, n int) error {
	pts := testCtx.Resolution.Points
	if len(pts) != n {
		return fmt.Errorf("expected %d points, got %d", n, len(pts))
	}
	for _, p := range pts {
		if got, ok := p.ID(); !ok || got != id {
			return fmt.Errorf("expected only target %d, found point %v with target %d", id, p.Point, got)
		}
	}
	return nil
}

func (testCtx *TestContext) pointsShouldRemain(n int) error {
	if got := len(testCtx.Resolution.Points); got != n {
		return fmt.Errorf("expected %d points, got %d", n, got)
	}
	return nil
}

// RegisterLabelerSteps registers the judging and resolution steps.
func (testCtx *TestContext) RegisterLabelerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the minimum point count is (\d+)$`, testCtx.theMinimumPointCountIs)
	sc.Step(`^an image yields (\d+) points$`, testCtx.anImageYieldsPoints)
	sc.Step(`^I judge the image$`, testCtx.iJudgeTheImage)
	sc.Step(`^the image should be (labeled|skipped)$`, testCtx.theImageShouldBe)

	sc.Step(`^a detected target (\d+) with spacing ([\d.]+) at \(([\d.]+), ([\d.]+)\)$`, testCtx.aDetectedTargetWithSpacing)
	sc.Step(`^an untagged point at \(([\d.]+), ([\d.]+)\)$`, testCtx.anUntaggedPoint)
	sc.Step(`^I resolve the points$`, testCtx.iResolveThePoints)
	sc.Step(`^the resolution should (not )?be applied$`, testCtx.resolutionShouldBeApplied)
	sc.Step(`^only target (\d+) should remain with (\d+) points$`, testCtx.onlyTargetShouldRemain)
	sc.Step(`^(\d+) points should remain$`, testCtx.pointsShouldRemain)
}
