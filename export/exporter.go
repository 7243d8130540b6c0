package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Exporter turns a rendered region into a paginated PDF and hands it to a
// Sink. It mutates the surface's scroll position and the region's inline
// style while running; both are restored on every exit path. Callers must
// not run two exports against the same surface at once.
type Exporter struct {
	Surface     Surface
	Rasterizer  Rasterizer
	NewDocument DocumentFactory
	Sink        Sink
	Tracker     Tracker
	Logger      Logger
	Options     Options
	Now         func() time.Time
	Wait        func(ctx context.Context, d time.Duration) error
	IDGenerator func() string
}

// NewExporter creates an exporter with default options.
func NewExporter(surface Surface, rasterizer Rasterizer, newDocument DocumentFactory, sink Sink) *Exporter {
	return &Exporter{
		Surface:     surface,
		Rasterizer:  rasterizer,
		NewDocument: newDocument,
		Sink:        sink,
		Logger:      NopLogger{},
		Options:     DefaultOptions(),
		Now:         time.Now,
		Wait:        sleepContext,
		IDGenerator: uuid.NewString,
	}
}

// WithSurface returns a copy bound to another surface, e.g. a fresh browser tab.
func (e *Exporter) WithSurface(surface Surface, rasterizer Rasterizer) *Exporter {
	clone := *e
	clone.Surface = surface
	clone.Rasterizer = rasterizer
	return &clone
}

// Export runs the capture pipeline for req and delivers the document.
func (e *Exporter) Export(ctx context.Context, req ExportRequest) (Result, error) {
	if e == nil {
		return Result{}, NewError(KindInternal, "exporter is nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if e.Surface == nil || e.Rasterizer == nil {
		return Result{}, NewError(KindValidation, "exporter requires surface and rasterizer", nil)
	}
	if e.NewDocument == nil {
		return Result{}, NewError(KindValidation, "exporter requires document factory", nil)
	}
	if e.Sink == nil {
		return Result{}, NewError(KindValidation, "exporter requires sink", nil)
	}
	if strings.TrimSpace(req.RegionID) == "" {
		return Result{}, NewError(KindValidation, "region id is required", nil)
	}

	opts := e.Options.withDefaults()
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}

	logger := e.logger()
	now := e.now()
	id := e.nextID()

	if e.Tracker != nil {
		trackedID, err := e.Tracker.Start(ctx, ExportRecord{
			ID:        id,
			RegionID:  req.RegionID,
			Title:     req.Title,
			Filename:  Filename(req.FileBaseName, now),
			State:     StateRunning,
			CreatedAt: now,
		})
		if err != nil {
			return Result{}, wrapKind(KindInternal, "export tracking failed", err)
		}
		if trackedID != "" {
			id = trackedID
		}
	}

	result, err := e.run(ctx, id, req, opts, now)
	if err != nil {
		logger.Errorf("export %s of region %q failed: %v", id, req.RegionID, err)
		if e.Tracker != nil {
			if terr := e.Tracker.Fail(context.WithoutCancel(ctx), id, err); terr != nil {
				logger.Errorf("export %s: record failure: %v", id, terr)
			}
		}
		return Result{}, err
	}

	if e.Tracker != nil {
		if terr := e.Tracker.Complete(ctx, id, result); terr != nil {
			logger.Errorf("export %s: record completion: %v", id, terr)
		}
	}
	logger.Infof("export %s completed: %s (%d pages, %d bytes)", id, result.Filename, result.Pages, result.Bytes)
	return result, nil
}

func (e *Exporter) run(ctx context.Context, id string, req ExportRequest, opts Options, now time.Time) (Result, error) {
	builder, pages, err := e.render(ctx, req, opts, now)
	if err != nil {
		return Result{}, err
	}

	data, err := builder.Serialize()
	if err != nil {
		return Result{}, wrapKind(KindSerialization, "pdf serialization failed", err)
	}
	if len(data) == 0 {
		return Result{}, NewError(KindSerialization, "pdf serialization produced no output", nil)
	}

	doc := Document{
		Filename:    Filename(req.FileBaseName, now),
		ContentType: ContentTypePDF,
		Data:        data,
		Pages:       pages,
	}
	ref, err := e.Sink.Deliver(ctx, doc)
	if err != nil {
		return Result{}, wrapKind(KindDelivery, "document delivery failed", err)
	}

	return Result{
		ID:       id,
		Filename: doc.Filename,
		Pages:    pages,
		Bytes:    int64(len(data)),
		Artifact: ref,
	}, nil
}

// render captures every page into a builder. The original scroll position is
// restored before it returns.
func (e *Exporter) render(ctx context.Context, req ExportRequest, opts Options, now time.Time) (builder DocumentBuilder, pages int, err error) {
	metrics, err := e.Surface.Measure(ctx, req.RegionID)
	if err != nil {
		return nil, 0, wrapKind(KindInternal, fmt.Sprintf("measure region %q failed", req.RegionID), err)
	}

	pages = PageCount(metrics.Height, opts.CaptureWindow)
	if pages == 0 {
		return nil, 0, NewError(KindValidation, fmt.Sprintf("region %q has no height", req.RegionID), nil)
	}

	original, err := e.Surface.ScrollY(ctx)
	if err != nil {
		return nil, 0, wrapKind(KindInternal, "read scroll position failed", err)
	}
	defer func() {
		if rerr := e.Surface.ScrollTo(context.WithoutCancel(ctx), original); rerr != nil {
			e.logger().Errorf("restore scroll position %.0f: %v", original, rerr)
			if err == nil {
				builder = nil
				err = NewError(KindInternal, "restore scroll position failed", rerr)
			}
		}
	}()

	builder, err = e.NewDocument(DocumentConfig{
		PageSize:    "A4",
		Orientation: "portrait",
		Unit:        "mm",
		Compress:    true,
		FontFamily:  opts.FontFamily,
	})
	if err != nil {
		return nil, 0, wrapKind(KindSerialization, "create document failed", err)
	}
	builder.SetFont(opts.FontFamily, "", opts.DateFontSize)

	geometry := opts.Geometry()
	for i := 0; i < pages; i++ {
		if cerr := ctx.Err(); cerr != nil {
			return nil, 0, wrapKind(KindCanceled, fmt.Sprintf("export interrupted before page %d", i+1), cerr)
		}

		layout := PlanPage(i, pages, metrics.Height, opts.CaptureWindow)
		if i > 0 {
			builder.AddPage()
		}
		if i == 0 {
			drawHeader(builder, geometry, req.Title, now, opts)
		}

		frame, cerr := e.capturePage(ctx, req.RegionID, layout, opts)
		if cerr != nil {
			return nil, 0, captureError(fmt.Sprintf("capture page %d of %d failed", i+1, pages), cerr)
		}

		placement := geometry.Place(i, frame.Width, frame.Height)
		if ierr := builder.AddImage(ImagePlacement{
			Data:        frame.Data,
			Format:      frame.Format,
			X:           placement.X,
			Y:           placement.Y,
			Width:       placement.Width,
			Height:      placement.Height,
			Compression: CompressionFast,
		}); ierr != nil {
			return nil, 0, wrapKind(KindSerialization, fmt.Sprintf("place image on page %d failed", i+1), ierr)
		}

		drawFooter(builder, geometry, i, pages, opts)
		e.logger().Debugf("region %q page %d/%d: offset=%.0f height=%.0f frame=%dx%d placed=%.2fx%.2fmm",
			req.RegionID, i+1, pages, layout.Offset, layout.CaptureHeight, frame.Width, frame.Height, placement.Width, placement.Height)
	}

	return builder, pages, nil
}

// capturePage scrolls to the page offset, waits for the surface to settle and
// rasterizes the window with the temporary capture style applied.
func (e *Exporter) capturePage(ctx context.Context, regionID string, layout PageLayout, opts Options) (frame RasterFrame, err error) {
	if err := e.Surface.ScrollTo(ctx, layout.Offset); err != nil {
		return RasterFrame{}, err
	}
	if err := e.wait(ctx, opts.Settle()); err != nil {
		return RasterFrame{}, err
	}

	style, err := e.Surface.InlineStyle(ctx, regionID)
	if err != nil {
		return RasterFrame{}, err
	}
	defer func() {
		if rerr := e.Surface.SetInlineStyle(context.WithoutCancel(ctx), regionID, style); rerr != nil {
			e.logger().Errorf("restore style of region %q: %v", regionID, rerr)
			if err == nil {
				err = NewError(KindInternal, "restore region style failed", rerr)
			}
		}
	}()
	if err := e.Surface.SetInlineStyle(ctx, regionID, captureStyle(style, layout.Last, opts)); err != nil {
		return RasterFrame{}, err
	}

	frame, err = e.Rasterizer.Capture(ctx, CaptureRequest{
		RegionID:   regionID,
		Y:          layout.Offset,
		Height:     layout.CaptureHeight,
		Scale:      opts.Scale,
		Background: opts.Background,
		Quality:    opts.JPEGQuality,
		UseCORS:    true,
	})
	if err != nil {
		return RasterFrame{}, err
	}
	if len(frame.Data) == 0 || frame.Width <= 0 || frame.Height <= 0 {
		return RasterFrame{}, NewError(KindCapture, "rasterizer returned an empty frame", nil)
	}
	if frame.Format == "" {
		frame.Format = ImageJPEG
	}
	return frame, nil
}

// captureError reports a failed capture step as KindCapture whatever kind the
// collaborator used. Context cancellation and deadlines keep their own kinds.
func captureError(msg string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return NewError(KindCanceled, msg, err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTimeout, msg, err)
	default:
		return NewError(KindCapture, msg, err)
	}
}

func drawHeader(b DocumentBuilder, g PageGeometry, title string, now time.Time, opts Options) {
	left, top := g.Margins.Left, g.Margins.Top
	b.SetFontSize(opts.TitleFontSize)
	b.Text(left, top, title, AlignLeft)
	b.SetFontSize(opts.DateFontSize)
	b.Text(left, top+10, "Generated on: "+now.Format(opts.DateLayout), AlignLeft)
	b.SetLineWidth(opts.RuleWidth)
	b.Line(left, top+15, g.Width-g.Margins.Right, top+15)
}

func drawFooter(b DocumentBuilder, g PageGeometry, index, total int, opts Options) {
	x, y := g.FooterPosition()
	b.SetFontSize(opts.FooterFontSize)
	gray := opts.Gray()
	b.SetTextColor(gray, gray, gray)
	b.Text(x, y, FooterText(index, total), AlignCenter)
	b.SetTextColor(0, 0, 0)
}

// FooterText is the page label drawn on every page.
func FooterText(index, total int) string {
	return fmt.Sprintf("Page %d of %d", index+1, total)
}

// captureStyle appends the temporary capture declarations to the region's
// inline style. Later declarations win, so the original text is restored
// verbatim afterwards.
func captureStyle(original string, last bool, opts Options) string {
	var b strings.Builder
	base := strings.TrimRight(strings.TrimSpace(original), "; ")
	if base != "" {
		b.WriteString(base)
		b.WriteString("; ")
	}
	fmt.Fprintf(&b, "padding: %s; background-color: %s;", opts.Padding, opts.Background)
	if last {
		fmt.Fprintf(&b, " padding-bottom: %s;", opts.LastPagePadding)
	}
	return b.String()
}

func (e *Exporter) wait(ctx context.Context, d time.Duration) error {
	if e.Wait == nil {
		return sleepContext(ctx, d)
	}
	return e.Wait(ctx, d)
}

func (e *Exporter) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Exporter) nextID() string {
	if e.IDGenerator == nil {
		return uuid.NewString()
	}
	return e.IDGenerator()
}

func (e *Exporter) logger() Logger {
	if e.Logger == nil {
		return NopLogger{}
	}
	return e.Logger
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
