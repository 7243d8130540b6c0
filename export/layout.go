package export

import "math"

// A4 portrait dimensions in millimetres.
const (
	A4Width  = 210.0
	A4Height = 297.0
)

// Margins are page margins in millimetres.
type Margins struct {
	Top    float64
	Right  float64
	Bottom float64
	Left   float64
}

// DefaultMargins returns the standard export margins.
func DefaultMargins() Margins {
	return Margins{Top: 20, Right: 20, Bottom: 30, Left: 20}
}

// PageGeometry is the fixed page layout for one export.
type PageGeometry struct {
	Width         float64
	Height        float64
	Margins       Margins
	HeaderReserve float64
}

// ContentWidth is the page width inside the horizontal margins.
func (g PageGeometry) ContentWidth() float64 {
	return g.Width - g.Margins.Left - g.Margins.Right
}

// ContentHeight is the page height inside the vertical margins.
func (g PageGeometry) ContentHeight() float64 {
	return g.Height - g.Margins.Top - g.Margins.Bottom
}

// AvailableHeight is the content height left for the image on a page.
func (g PageGeometry) AvailableHeight(pageIndex int) float64 {
	if pageIndex == 0 {
		return g.ContentHeight() - g.HeaderReserve
	}
	return g.ContentHeight()
}

// Placement is where an image is drawn on a page.
type Placement struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// ScaledHeight returns the aspect preserving height for a frame drawn at
// content width, before clamping.
func (g PageGeometry) ScaledHeight(frameWidth, frameHeight int) float64 {
	if frameWidth <= 0 {
		return 0
	}
	return float64(frameHeight) * g.ContentWidth() / float64(frameWidth)
}

// Place computes the image placement for a frame on the given page.
func (g PageGeometry) Place(pageIndex int, frameWidth, frameHeight int) Placement {
	height := g.ScaledHeight(frameWidth, frameHeight)
	if available := g.AvailableHeight(pageIndex); height > available {
		height = available
	}
	y := g.Margins.Top
	if pageIndex == 0 {
		y += g.HeaderReserve
	}
	return Placement{
		X:      g.Margins.Left,
		Y:      y,
		Width:  g.ContentWidth(),
		Height: height,
	}
}

// FooterPosition is the anchor for the centered page footer.
func (g PageGeometry) FooterPosition() (x, y float64) {
	return g.Width / 2, g.Height - g.Margins.Bottom/3
}

// PageCount returns the number of capture windows needed for a region.
func PageCount(totalHeight, window float64) int {
	if totalHeight <= 0 || window <= 0 {
		return 0
	}
	return int(math.Ceil(totalHeight / window))
}

// PageLayout is the computed geometry for one physical page.
type PageLayout struct {
	Index         int
	Offset        float64
	CaptureHeight float64
	Last          bool
	Placement     Placement
	Available     float64
}

// PlanPage computes the capture window for page i of n.
func PlanPage(i, n int, totalHeight, window float64) PageLayout {
	offset := float64(i) * window
	return PageLayout{
		Index:         i,
		Offset:        offset,
		CaptureHeight: math.Min(window, totalHeight-offset),
		Last:          i == n-1,
	}
}
