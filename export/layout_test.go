package export

import (
	"math"
	"testing"
	"time"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPageCount(t *testing.T) {
	tests := []struct {
		height float64
		want   int
	}{
		{height: 0, want: 0},
		{height: 1, want: 1},
		{height: 1200, want: 1},
		{height: 1201, want: 2},
		{height: 2400, want: 2},
		{height: 2401, want: 3},
		{height: 3599.5, want: 3},
	}

	for _, tc := range tests {
		if got := PageCount(tc.height, DefaultCaptureWindow); got != tc.want {
			t.Fatalf("PageCount(%v): expected %d, got %d", tc.height, tc.want, got)
		}
	}
}

func TestPageGeometry_ContentArea(t *testing.T) {
	g := DefaultOptions().Geometry()
	if !approxEqual(g.ContentWidth(), 170) {
		t.Fatalf("expected content width 170, got %v", g.ContentWidth())
	}
	if !approxEqual(g.ContentHeight(), 247) {
		t.Fatalf("expected content height 247, got %v", g.ContentHeight())
	}
	if !approxEqual(g.AvailableHeight(0), 222) {
		t.Fatalf("expected first page available height 222, got %v", g.AvailableHeight(0))
	}
	if !approxEqual(g.AvailableHeight(3), 247) {
		t.Fatalf("expected available height 247, got %v", g.AvailableHeight(3))
	}
}

func TestPageGeometry_PlacePreservesAspect(t *testing.T) {
	g := DefaultOptions().Geometry()
	frames := []struct{ w, h int }{
		{w: 1000, h: 500},
		{w: 1650, h: 1800},
		{w: 800, h: 1},
	}
	for _, f := range frames {
		want := g.ContentWidth() * float64(f.h) / float64(f.w)
		if got := g.ScaledHeight(f.w, f.h); !approxEqual(got, want) {
			t.Fatalf("ScaledHeight(%d,%d): expected %v, got %v", f.w, f.h, want, got)
		}
		placed := g.Place(1, f.w, f.h)
		if want <= g.ContentHeight() && !approxEqual(placed.Height, want) {
			t.Fatalf("Place(%d,%d): expected unclamped height %v, got %v", f.w, f.h, want, placed.Height)
		}
		if !approxEqual(placed.Width, g.ContentWidth()) {
			t.Fatalf("expected width %v, got %v", g.ContentWidth(), placed.Width)
		}
	}
}

func TestPageGeometry_PlaceClamps(t *testing.T) {
	g := DefaultOptions().Geometry()

	first := g.Place(0, 1000, 5000)
	if !approxEqual(first.Height, 222) {
		t.Fatalf("expected first page clamp to 222, got %v", first.Height)
	}
	if !approxEqual(first.Y, 45) || !approxEqual(first.X, 20) {
		t.Fatalf("expected first page origin (20,45), got (%v,%v)", first.X, first.Y)
	}

	second := g.Place(1, 1000, 5000)
	if !approxEqual(second.Height, 247) {
		t.Fatalf("expected clamp to 247, got %v", second.Height)
	}
	if !approxEqual(second.Y, 20) {
		t.Fatalf("expected y 20, got %v", second.Y)
	}

	for page := 0; page < 4; page++ {
		for _, h := range []int{1, 900, 1800, 40000} {
			placed := g.Place(page, 1650, h)
			if placed.Height > g.AvailableHeight(page)+1e-9 {
				t.Fatalf("page %d frame height %d: placed %v exceeds %v", page, h, placed.Height, g.AvailableHeight(page))
			}
		}
	}
}

func TestPageGeometry_FooterPosition(t *testing.T) {
	x, y := DefaultOptions().Geometry().FooterPosition()
	if !approxEqual(x, 105) || !approxEqual(y, 287) {
		t.Fatalf("expected footer at (105,287), got (%v,%v)", x, y)
	}
}

func TestPlanPage(t *testing.T) {
	total := 2500.0
	n := PageCount(total, DefaultCaptureWindow)
	if n != 3 {
		t.Fatalf("expected 3 pages, got %d", n)
	}

	wantHeights := []float64{1200, 1200, 100}
	for i := 0; i < n; i++ {
		layout := PlanPage(i, n, total, DefaultCaptureWindow)
		if !approxEqual(layout.Offset, float64(i)*DefaultCaptureWindow) {
			t.Fatalf("page %d: expected offset %v, got %v", i, float64(i)*DefaultCaptureWindow, layout.Offset)
		}
		if !approxEqual(layout.CaptureHeight, wantHeights[i]) {
			t.Fatalf("page %d: expected capture height %v, got %v", i, wantHeights[i], layout.CaptureHeight)
		}
		if layout.Last != (i == n-1) {
			t.Fatalf("page %d: unexpected last flag %v", i, layout.Last)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("default options invalid: %v", err)
	}

	bad := DefaultOptions()
	bad.JPEGQuality = 101
	if err := bad.Validate(); KindFromError(err) != KindValidation {
		t.Fatalf("expected validation error for quality, got %v", err)
	}

	bad = DefaultOptions()
	bad.Margins = Margins{Top: 150, Bottom: 150, Left: 20, Right: 20}
	if err := bad.Validate(); KindFromError(err) != KindValidation {
		t.Fatalf("expected validation error for margins, got %v", err)
	}

	filled := Options{}.withDefaults()
	if filled.CaptureWindow != DefaultCaptureWindow || filled.Scale != DefaultScale || filled.JPEGQuality != DefaultJPEGQuality {
		t.Fatalf("expected defaults to be filled, got %+v", filled)
	}
	if filled.Settle() != DefaultSettleDelay || filled.Gray() != DefaultFooterGray {
		t.Fatalf("expected default settle delay and footer gray, got %v %d", filled.Settle(), filled.Gray())
	}

	noWait, black := time.Duration(0), 0
	kept := Options{SettleDelay: &noWait, FooterGray: &black}.withDefaults()
	if kept.Settle() != 0 {
		t.Fatalf("expected explicit zero settle delay to be kept, got %v", kept.Settle())
	}
	if kept.Gray() != 0 {
		t.Fatalf("expected black footer to be kept, got %d", kept.Gray())
	}

	white := 256
	bad = DefaultOptions()
	bad.FooterGray = &white
	if err := bad.Validate(); KindFromError(err) != KindValidation {
		t.Fatalf("expected validation error for footer gray, got %v", err)
	}
}
