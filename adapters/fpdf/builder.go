package exportfpdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/goliatone/go-pagepdf/export"
)

// Builder implements export.DocumentBuilder on top of fpdf.
type Builder struct {
	pdf       *fpdf.Fpdf
	translate func(string) string
	images    int
}

var _ export.DocumentBuilder = (*Builder)(nil)

// New creates a builder with its first page already added.
func New(cfg export.DocumentConfig) (export.DocumentBuilder, error) {
	builder, err := NewBuilder(cfg)
	if err != nil {
		return nil, err
	}
	return builder, nil
}

// NewBuilder creates a concrete builder.
func NewBuilder(cfg export.DocumentConfig) (*Builder, error) {
	orientation, err := orientationCode(cfg.Orientation)
	if err != nil {
		return nil, err
	}
	unit := cfg.Unit
	if unit == "" {
		unit = "mm"
	}
	size := cfg.PageSize
	if size == "" {
		size = "A4"
	}

	pdf := fpdf.New(orientation, unit, size, "")
	pdf.SetCompression(cfg.Compress)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)

	family := cfg.FontFamily
	if family == "" {
		family = export.DefaultFontFamily
	}
	pdf.SetFont(family, "", 12)
	pdf.AddPage()
	if pdf.Err() {
		return nil, export.NewError(export.KindSerialization, "pdf init failed", pdf.Error())
	}

	return &Builder{
		pdf:       pdf,
		translate: pdf.UnicodeTranslatorFromDescriptor(""),
	}, nil
}

func (b *Builder) AddPage() {
	b.pdf.AddPage()
}

func (b *Builder) SetFont(family, style string, size float64) {
	b.pdf.SetFont(family, style, size)
}

func (b *Builder) SetFontSize(size float64) {
	b.pdf.SetFontSize(size)
}

func (b *Builder) SetTextColor(r, g, bl int) {
	b.pdf.SetTextColor(r, g, bl)
}

func (b *Builder) SetLineWidth(width float64) {
	b.pdf.SetLineWidth(width)
}

// Text draws text with its baseline at y. x is the left edge, center or
// right edge depending on align.
func (b *Builder) Text(x, y float64, text string, align export.Align) {
	text = b.translate(text)
	switch align {
	case export.AlignCenter:
		x -= b.pdf.GetStringWidth(text) / 2
	case export.AlignRight:
		x -= b.pdf.GetStringWidth(text)
	}
	b.pdf.Text(x, y, text)
}

func (b *Builder) Line(x1, y1, x2, y2 float64) {
	b.pdf.Line(x1, y1, x2, y2)
}

// AddImage registers the encoded image and draws it on the current page.
// fpdf embeds JPEG and PNG streams without re-encoding and only offers
// document-wide stream compression, so img.Compression has no effect here.
func (b *Builder) AddImage(img export.ImagePlacement) error {
	if len(img.Data) == 0 {
		return export.NewError(export.KindValidation, "image data is empty", nil)
	}
	imageType, err := imageTypeFor(img.Format)
	if err != nil {
		return err
	}

	b.images++
	name := fmt.Sprintf("frame-%d", b.images)
	options := fpdf.ImageOptions{ImageType: imageType}
	b.pdf.RegisterImageOptionsReader(name, options, bytes.NewReader(img.Data))
	if b.pdf.Err() {
		return export.NewError(export.KindSerialization, "register image failed", b.pdf.Error())
	}
	b.pdf.ImageOptions(name, img.X, img.Y, img.Width, img.Height, false, options, 0, "")
	if b.pdf.Err() {
		return export.NewError(export.KindSerialization, "draw image failed", b.pdf.Error())
	}
	return nil
}

// Serialize finalizes the document.
func (b *Builder) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := b.pdf.Output(&buf); err != nil {
		return nil, export.NewError(export.KindSerialization, "pdf output failed", err)
	}
	return buf.Bytes(), nil
}

// PageCount reports the number of pages added so far.
func (b *Builder) PageCount() int {
	return b.pdf.PageCount()
}

func orientationCode(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "p", "portrait":
		return "P", nil
	case "l", "landscape":
		return "L", nil
	default:
		return "", export.NewError(export.KindValidation, fmt.Sprintf("unsupported orientation: %s", value), nil)
	}
}

func imageTypeFor(format export.ImageFormat) (string, error) {
	switch format {
	case export.ImageJPEG, "":
		return "JPG", nil
	case export.ImagePNG:
		return "PNG", nil
	default:
		return "", export.NewError(export.KindValidation, fmt.Sprintf("unsupported image format: %s", format), nil)
	}
}
