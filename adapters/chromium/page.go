package exportchromium

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/goliatone/go-pagepdf/export"
)

// Page is one Chromium tab. It serves as both the export surface and the
// rasterizer for regions rendered in it.
type Page struct {
	tabCtx  context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  export.Logger
}

var (
	_ export.Surface    = (*Page)(nil)
	_ export.Rasterizer = (*Page)(nil)
)

type regionInfo struct {
	Found  bool    `json:"found"`
	Height float64 `json:"height"`
	Width  float64 `json:"width"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	CSS    string  `json:"css"`
}

// ScrollY returns the window's vertical scroll offset.
func (p *Page) ScrollY(ctx context.Context) (float64, error) {
	var y float64
	if err := p.run(ctx, chromedp.Evaluate(`window.scrollY`, &y)); err != nil {
		return 0, wrapRunError("read scroll position failed", err)
	}
	return y, nil
}

// ScrollTo scrolls the window vertically.
func (p *Page) ScrollTo(ctx context.Context, y float64) error {
	var ok bool
	script := fmt.Sprintf(`(window.scrollTo(0, %s), true)`, strconv.FormatFloat(y, 'f', -1, 64))
	if err := p.run(ctx, chromedp.Evaluate(script, &ok)); err != nil {
		return wrapRunError("scroll failed", err)
	}
	return nil
}

// Measure returns the region height as max(bounding height, scrollHeight).
func (p *Page) Measure(ctx context.Context, regionID string) (export.RegionMetrics, error) {
	info, err := p.region(ctx, regionID)
	if err != nil {
		return export.RegionMetrics{}, err
	}
	return export.RegionMetrics{Height: info.Height, Width: info.Width}, nil
}

// InlineStyle returns the region's style.cssText.
func (p *Page) InlineStyle(ctx context.Context, regionID string) (string, error) {
	info, err := p.region(ctx, regionID)
	if err != nil {
		return "", err
	}
	return info.CSS, nil
}

// SetInlineStyle replaces the region's style.cssText.
func (p *Page) SetInlineStyle(ctx context.Context, regionID, css string) error {
	id, err := jsString(regionID)
	if err != nil {
		return err
	}
	value, err := jsString(css)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(`(() => {
		const el = document.getElementById(%s);
		if (!el) { return false; }
		el.style.cssText = %s;
		return true;
	})()`, id, value)

	var found bool
	if err := p.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return wrapRunError("set region style failed", err)
	}
	if !found {
		return regionNotFound(regionID)
	}
	return nil
}

// Capture rasterizes a vertical window of the region via the DevTools
// screenshot API. Screenshots are taken from the compositor, so cross-origin
// images never taint the result.
func (p *Page) Capture(ctx context.Context, req export.CaptureRequest) (export.RasterFrame, error) {
	if req.Height <= 0 {
		return export.RasterFrame{}, export.NewError(export.KindValidation, "capture height must be positive", nil)
	}
	if req.Scale <= 0 {
		req.Scale = 1
	}
	quality := req.Quality
	if quality <= 0 || quality > 100 {
		quality = export.DefaultJPEGQuality
	}
	background, err := parseHexColor(req.Background)
	if err != nil {
		return export.RasterFrame{}, err
	}

	info, err := p.region(ctx, req.RegionID)
	if err != nil {
		return export.RasterFrame{}, wrapCaptureError(err)
	}

	var data []byte
	err = p.run(ctx,
		emulation.SetDefaultBackgroundColorOverride().WithColor(background),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			data, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatJpeg).
				WithQuality(int64(quality)).
				WithCaptureBeyondViewport(true).
				WithFromSurface(true).
				WithClip(&page.Viewport{
					X:      info.Left,
					Y:      info.Top + req.Y,
					Width:  info.Width,
					Height: req.Height,
					Scale:  req.Scale,
				}).
				Do(ctx)
			return err
		}),
	)
	if rerr := p.run(context.WithoutCancel(ctx), emulation.SetDefaultBackgroundColorOverride()); rerr != nil {
		p.logger.Errorf("reset background override: %v", rerr)
	}
	if err != nil {
		return export.RasterFrame{}, wrapCaptureError(err)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return export.RasterFrame{}, export.NewError(export.KindCapture, "screenshot is not a valid jpeg", err)
	}

	return export.RasterFrame{
		Data:   data,
		Format: export.ImageJPEG,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// Close closes the tab.
func (p *Page) Close() {
	if p != nil && p.cancel != nil {
		p.cancel()
	}
}

func (p *Page) region(ctx context.Context, regionID string) (regionInfo, error) {
	script, err := regionScript(regionID)
	if err != nil {
		return regionInfo{}, err
	}
	var info regionInfo
	if err := p.run(ctx, chromedp.Evaluate(script, &info)); err != nil {
		return regionInfo{}, wrapRunError("locate region failed", err)
	}
	if !info.Found {
		return regionInfo{}, regionNotFound(regionID)
	}
	return info, nil
}

// run executes actions on the tab, bounded by the page timeout and
// cancelled together with ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	if p == nil || p.tabCtx == nil {
		return export.NewError(export.KindInternal, "chromium page is closed", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	execCtx, cancelReq := context.WithCancel(p.tabCtx)
	defer cancelReq()
	go func() {
		select {
		case <-ctx.Done():
			cancelReq()
		case <-execCtx.Done():
		}
	}()
	if p.timeout > 0 {
		var cancelTimeout context.CancelFunc
		execCtx, cancelTimeout = context.WithTimeout(execCtx, p.timeout)
		defer cancelTimeout()
	}

	err := chromedp.Run(execCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func regionScript(regionID string) (string, error) {
	id, err := jsString(regionID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
		const el = document.getElementById(%s);
		if (!el) { return {found: false}; }
		const rect = el.getBoundingClientRect();
		return {
			found: true,
			height: Math.max(rect.height, el.scrollHeight),
			width: rect.width,
			left: rect.left + window.scrollX,
			top: rect.top + window.scrollY,
			css: el.style.cssText
		};
	})()`, id), nil
}

func jsString(value string) (string, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", export.NewError(export.KindValidation, "invalid script argument", err)
	}
	return string(encoded), nil
}

func regionNotFound(regionID string) error {
	return export.NewError(export.KindRegionNotFound, fmt.Sprintf("region %q not found", regionID), nil)
}

func parseHexColor(value string) (*cdp.RGBA, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "#")
	if value == "" {
		value = "ffffff"
	}
	if len(value) == 3 {
		value = string([]byte{value[0], value[0], value[1], value[1], value[2], value[2]})
	}
	if len(value) != 6 {
		return nil, export.NewError(export.KindValidation, fmt.Sprintf("invalid background color: %q", value), nil)
	}
	raw, err := strconv.ParseUint(value, 16, 32)
	if err != nil {
		return nil, export.NewError(export.KindValidation, fmt.Sprintf("invalid background color: %q", value), err)
	}
	return &cdp.RGBA{
		R: int64(raw >> 16 & 0xff),
		G: int64(raw >> 8 & 0xff),
		B: int64(raw & 0xff),
		A: 1,
	}, nil
}

func wrapRunError(msg string, err error) error {
	if err == nil {
		return nil
	}
	var exportErr *export.ExportError
	if errors.As(err, &exportErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return export.NewError(export.KindTimeout, msg, err)
	}
	if errors.Is(err, context.Canceled) {
		return export.NewError(export.KindCanceled, msg, err)
	}
	return export.NewError(export.KindInternal, msg, err)
}

// wrapCaptureError reports any failure during Capture as KindCapture, a
// region detached since it was measured included. Deadlines and
// cancellation keep their kinds.
func wrapCaptureError(err error) error {
	switch export.KindFromError(wrapRunError("chromium capture failed", err)) {
	case export.KindTimeout:
		return export.NewError(export.KindTimeout, "chromium capture failed", err)
	case export.KindCanceled:
		return export.NewError(export.KindCanceled, "chromium capture failed", err)
	default:
		return export.NewError(export.KindCapture, "chromium capture failed", err)
	}
}
