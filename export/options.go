package export

import (
	"fmt"
	"time"
)

const (
	DefaultCaptureWindow   = 1200.0
	DefaultSettleDelay     = 500 * time.Millisecond
	DefaultScale           = 1.5
	DefaultJPEGQuality     = 95
	DefaultBackground      = "#ffffff"
	DefaultPadding         = "20px"
	DefaultLastPagePadding = "50px"
	DefaultHeaderReserve   = 25.0
	DefaultDateLayout      = "2006-01-02"
	DefaultFontFamily      = "helvetica"
	DefaultFooterGray      = 128
)

// Options are the tunables of the export pipeline.
type Options struct {
	// CaptureWindow is the height in CSS pixels rasterized per page.
	CaptureWindow float64
	// SettleDelay lets the surface repaint after scrolling, before capture.
	// Nil means DefaultSettleDelay; point at zero to skip the wait.
	SettleDelay *time.Duration
	Scale       float64
	JPEGQuality int
	Background  string
	Padding     string
	// LastPagePadding keeps trailing content clear of the capture edge.
	LastPagePadding string
	Margins         Margins
	HeaderReserve   float64
	DateLayout      string
	FontFamily      string
	TitleFontSize   float64
	DateFontSize    float64
	FooterFontSize  float64
	// FooterGray is the footer text gray level, 0 (black) to 255. Nil means
	// DefaultFooterGray.
	FooterGray *int
	RuleWidth  float64
}

// DefaultOptions returns the reference pipeline settings.
func DefaultOptions() Options {
	return Options{
		CaptureWindow:   DefaultCaptureWindow,
		SettleDelay:     durationPtr(DefaultSettleDelay),
		Scale:           DefaultScale,
		JPEGQuality:     DefaultJPEGQuality,
		Background:      DefaultBackground,
		Padding:         DefaultPadding,
		LastPagePadding: DefaultLastPagePadding,
		Margins:         DefaultMargins(),
		HeaderReserve:   DefaultHeaderReserve,
		DateLayout:      DefaultDateLayout,
		FontFamily:      DefaultFontFamily,
		TitleFontSize:   18,
		DateFontSize:    11,
		FooterFontSize:  10,
		FooterGray:      intPtr(DefaultFooterGray),
		RuleWidth:       0.5,
	}
}

// withDefaults fills zero values and nil pointers from DefaultOptions.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SettleDelay == nil {
		o.SettleDelay = def.SettleDelay
	}
	if o.CaptureWindow == 0 {
		o.CaptureWindow = def.CaptureWindow
	}
	if o.Scale == 0 {
		o.Scale = def.Scale
	}
	if o.JPEGQuality == 0 {
		o.JPEGQuality = def.JPEGQuality
	}
	if o.Background == "" {
		o.Background = def.Background
	}
	if o.Padding == "" {
		o.Padding = def.Padding
	}
	if o.LastPagePadding == "" {
		o.LastPagePadding = def.LastPagePadding
	}
	if o.Margins == (Margins{}) {
		o.Margins = def.Margins
	}
	if o.HeaderReserve == 0 {
		o.HeaderReserve = def.HeaderReserve
	}
	if o.DateLayout == "" {
		o.DateLayout = def.DateLayout
	}
	if o.FontFamily == "" {
		o.FontFamily = def.FontFamily
	}
	if o.TitleFontSize == 0 {
		o.TitleFontSize = def.TitleFontSize
	}
	if o.DateFontSize == 0 {
		o.DateFontSize = def.DateFontSize
	}
	if o.FooterFontSize == 0 {
		o.FooterFontSize = def.FooterFontSize
	}
	if o.FooterGray == nil {
		o.FooterGray = def.FooterGray
	}
	if o.RuleWidth == 0 {
		o.RuleWidth = def.RuleWidth
	}
	return o
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.CaptureWindow <= 0 {
		return NewError(KindValidation, "capture window must be positive", nil)
	}
	if o.SettleDelay != nil && *o.SettleDelay < 0 {
		return NewError(KindValidation, "settle delay must not be negative", nil)
	}
	if o.FooterGray != nil && (*o.FooterGray < 0 || *o.FooterGray > 255) {
		return NewError(KindValidation, "footer gray must be between 0 and 255", nil)
	}
	if o.Scale <= 0 || o.Scale > 4 {
		return NewError(KindValidation, "scale must be between 0 and 4", nil)
	}
	if o.JPEGQuality < 1 || o.JPEGQuality > 100 {
		return NewError(KindValidation, "jpeg quality must be between 1 and 100", nil)
	}
	geometry := o.Geometry()
	if geometry.ContentWidth() <= 0 || geometry.AvailableHeight(0) <= 0 {
		return NewError(KindValidation, fmt.Sprintf("margins leave no content area: %+v", o.Margins), nil)
	}
	return nil
}

// Settle returns the settle delay, DefaultSettleDelay when unset.
func (o Options) Settle() time.Duration {
	if o.SettleDelay == nil {
		return DefaultSettleDelay
	}
	return *o.SettleDelay
}

// Gray returns the footer gray level, DefaultFooterGray when unset.
func (o Options) Gray() int {
	if o.FooterGray == nil {
		return DefaultFooterGray
	}
	return *o.FooterGray
}

// Geometry returns the A4 portrait page geometry for these options.
func (o Options) Geometry() PageGeometry {
	return PageGeometry{
		Width:         A4Width,
		Height:        A4Height,
		Margins:       o.Margins,
		HeaderReserve: o.HeaderReserve,
	}
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}

func intPtr(v int) *int {
	return &v
}
