package export

import (
	"context"
	"io"
	"time"
)

// ImageFormat identifies the encoding of a raster frame.
type ImageFormat string

const (
	ImageJPEG ImageFormat = "JPEG"
	ImagePNG  ImageFormat = "PNG"
)

// Align controls horizontal text alignment relative to the anchor point.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// ImageCompression is a hint passed to the document builder. Builders that
// embed encoded frames as-is, such as the fpdf builder, ignore it.
type ImageCompression string

const (
	CompressionNone   ImageCompression = "NONE"
	CompressionFast   ImageCompression = "FAST"
	CompressionMedium ImageCompression = "MEDIUM"
	CompressionSlow   ImageCompression = "SLOW"
)

const ContentTypePDF = "application/pdf"

// ExportRequest describes one export invocation.
type ExportRequest struct {
	RegionID     string
	FileBaseName string
	Title        string
}

// RegionMetrics describes a located region on the surface.
type RegionMetrics struct {
	// Height is the larger of the bounding box height and the scroll height.
	Height float64
	Width  float64
}

// RasterFrame is one rasterized capture window.
type RasterFrame struct {
	Data   []byte
	Format ImageFormat
	Width  int
	Height int
}

// CaptureRequest describes a single capture window.
type CaptureRequest struct {
	RegionID   string
	Y          float64
	Height     float64
	Scale      float64
	Background string
	Quality    int
	UseCORS    bool
}

// ImagePlacement positions an image on the current page, in millimetres.
type ImagePlacement struct {
	Data   []byte
	Format ImageFormat
	X      float64
	Y      float64
	Width  float64
	Height float64
	// Compression is advisory. The frame is already encoded at the
	// configured quality.
	Compression ImageCompression
}

// DocumentConfig is fixed when a document builder is created.
type DocumentConfig struct {
	PageSize    string
	Orientation string
	Unit        string
	Compress    bool
	FontFamily  string
}

// Document is the serialized output of one export.
type Document struct {
	Filename    string
	ContentType string
	Data        []byte
	Pages       int
}

// Result summarizes a completed export.
type Result struct {
	ID       string
	Filename string
	Pages    int
	Bytes    int64
	Artifact ArtifactRef
}

// Surface is the live viewing surface that hosts exportable regions.
type Surface interface {
	ScrollY(ctx context.Context) (float64, error)
	ScrollTo(ctx context.Context, y float64) error
	Measure(ctx context.Context, regionID string) (RegionMetrics, error)
	InlineStyle(ctx context.Context, regionID string) (string, error)
	SetInlineStyle(ctx context.Context, regionID, css string) error
}

// Rasterizer captures a window of a region as an encoded bitmap.
type Rasterizer interface {
	Capture(ctx context.Context, req CaptureRequest) (RasterFrame, error)
}

// RasterizerFunc adapts a function to a Rasterizer.
type RasterizerFunc func(ctx context.Context, req CaptureRequest) (RasterFrame, error)

func (f RasterizerFunc) Capture(ctx context.Context, req CaptureRequest) (RasterFrame, error) {
	if f == nil {
		return RasterFrame{}, NewError(KindInternal, "rasterizer func is nil", nil)
	}
	return f(ctx, req)
}

// DocumentBuilder assembles a PDF in millimetre units on a fixed page size.
// The first page exists once the builder is created.
type DocumentBuilder interface {
	AddPage()
	SetFont(family, style string, size float64)
	SetFontSize(size float64)
	SetTextColor(r, g, b int)
	SetLineWidth(width float64)
	Text(x, y float64, text string, align Align)
	Line(x1, y1, x2, y2 float64)
	AddImage(img ImagePlacement) error
	Serialize() ([]byte, error)
}

// DocumentFactory creates a fresh builder for each export.
type DocumentFactory func(cfg DocumentConfig) (DocumentBuilder, error)

// Sink receives the finished document.
type Sink interface {
	Deliver(ctx context.Context, doc Document) (ArtifactRef, error)
}

// ArtifactMeta describes stored artifacts.
type ArtifactMeta struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Pages       int       `json:"pages,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// ArtifactRef references a stored artifact.
type ArtifactRef struct {
	Key  string
	Meta ArtifactMeta
}

// ArtifactStore persists export artifacts.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader, meta ArtifactMeta) (ArtifactRef, error)
	Open(ctx context.Context, key string) (io.ReadCloser, ArtifactMeta, error)
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ExportState tracks lifecycle state.
type ExportState string

const (
	StateRunning   ExportState = "running"
	StateCompleted ExportState = "completed"
	StateFailed    ExportState = "failed"
)

// ExportRecord tracks an export in the history.
type ExportRecord struct {
	ID          string
	RegionID    string
	Title       string
	Filename    string
	State       ExportState
	Pages       int
	Bytes       int64
	Artifact    ArtifactRef
	Error       string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// ProgressFilter filters tracker lists.
type ProgressFilter struct {
	State  ExportState
	Since  time.Time
	Until  time.Time
	Limit  int
	Region string
}

// Tracker records export history.
type Tracker interface {
	Start(ctx context.Context, record ExportRecord) (string, error)
	Complete(ctx context.Context, id string, result Result) error
	Fail(ctx context.Context, id string, err error) error
	Status(ctx context.Context, id string) (ExportRecord, error)
	List(ctx context.Context, filter ProgressFilter) ([]ExportRecord, error)
}

// Logger provides logging hooks.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger is a no-op logger.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}
