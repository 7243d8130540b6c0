package exportchromium

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	exportfpdf "github.com/goliatone/go-pagepdf/adapters/fpdf"
	"github.com/goliatone/go-pagepdf/export"
)

func chromeBinaryPath(t *testing.T) string {
	t.Helper()

	chromePath := os.Getenv("CHROME_BIN")
	if chromePath == "" {
		paths := []string{"google-chrome", "chromium", "chromium-browser"}
		for _, candidate := range paths {
			if path, err := exec.LookPath(candidate); err == nil {
				chromePath = path
				break
			}
		}
	}
	if chromePath == "" {
		t.Skip("chromium binary not found; set CHROME_BIN to run this test")
	}

	return chromePath
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		input   string
		r, g, b int64
	}{
		{input: "#ffffff", r: 255, g: 255, b: 255},
		{input: "#fff", r: 255, g: 255, b: 255},
		{input: "102030", r: 16, g: 32, b: 48},
		{input: "", r: 255, g: 255, b: 255},
	}
	for _, tc := range tests {
		got, err := parseHexColor(tc.input)
		if err != nil {
			t.Fatalf("parseHexColor(%q): %v", tc.input, err)
		}
		if got.R != tc.r || got.G != tc.g || got.B != tc.b || got.A != 1 {
			t.Fatalf("parseHexColor(%q): unexpected %+v", tc.input, got)
		}
	}

	if _, err := parseHexColor("#12345"); export.KindFromError(err) != export.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := parseHexColor("#zzzzzz"); export.KindFromError(err) != export.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegionScript_EscapesID(t *testing.T) {
	script, err := regionScript(`a"); alert(1); ("`)
	if err != nil {
		t.Fatalf("regionScript: %v", err)
	}
	if !strings.Contains(script, `getElementById("a\"); alert(1); (\"")`) {
		t.Fatalf("expected escaped id in script, got %s", script)
	}
	if !strings.Contains(script, "Math.max(rect.height, el.scrollHeight)") {
		t.Fatalf("expected height to use max of bounding and scroll height")
	}
}

func TestInjectBaseURL(t *testing.T) {
	input := []byte("<html><head><title>Test</title></head><body>ok</body></html>")
	out := injectBaseURL(input, "https://assets.local/")
	if !bytes.Contains(out, []byte(`<head><base href="https://assets.local/">`)) {
		t.Fatalf("expected base tag to be injected, got %s", out)
	}

	bare := injectBaseURL([]byte("<html><body>ok</body></html>"), "https://assets.local/")
	if !bytes.Contains(bare, []byte("<head><base")) {
		t.Fatalf("expected head with base tag, got %s", bare)
	}

	unchanged := injectBaseURL(input, "")
	if !bytes.Equal(unchanged, input) {
		t.Fatalf("expected input unchanged without base url")
	}
}

func TestAllocatorOptionsFromArgs(t *testing.T) {
	options := allocatorOptionsFromArgs([]string{"--no-sandbox", "", "--", "--window-size=800,600"})
	if len(options) != 2 {
		t.Fatalf("expected 2 options, got %d", len(options))
	}
}

func TestPage_ClosedPageFails(t *testing.T) {
	var p *Page
	if _, err := p.ScrollY(context.Background()); export.KindFromError(err) != export.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestPage_CaptureLookupFailureIsCaptureError(t *testing.T) {
	var p *Page
	_, err := p.Capture(context.Background(), export.CaptureRequest{RegionID: "report", Height: 100, Scale: 1.5})
	if export.KindFromError(err) != export.KindCapture {
		t.Fatalf("expected capture error, got %v", err)
	}
}

func TestWrapCaptureError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want export.ErrorKind
	}{
		{"detached region", regionNotFound("report"), export.KindCapture},
		{"devtools", errors.New("websocket closed"), export.KindCapture},
		{"internal", export.NewError(export.KindInternal, "locate region failed", nil), export.KindCapture},
		{"deadline", context.DeadlineExceeded, export.KindTimeout},
		{"canceled", context.Canceled, export.KindCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := export.KindFromError(wrapCaptureError(tt.err)); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBrowser_ExportSmoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping chromium smoke test in short mode")
	}

	chromePath := chromeBinaryPath(t)
	browser := &Browser{
		BrowserPath:    chromePath,
		Headless:       true,
		Timeout:        20 * time.Second,
		Args:           []string{"--no-sandbox", "--disable-dev-shm-usage"},
		ViewportWidth:  1024,
		ViewportHeight: 800,
	}
	t.Cleanup(func() {
		_ = browser.Close()
	})

	var items strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&items, "<li style=\"height:40px\">Question %d</li>", i+1)
	}
	document := []byte(`<html><body style="margin:0">` +
		`<div id="analysis" style="width:900px;height:2500px;background:#eef">` +
		`<ol>` + items.String() + `</ol></div></body></html>`)

	ctx := context.Background()
	page, err := browser.OpenHTML(ctx, document, "")
	if err != nil {
		t.Fatalf("open html: %v", err)
	}
	defer page.Close()

	if _, err := page.Measure(ctx, "missing"); export.KindFromError(err) != export.KindRegionNotFound {
		t.Fatalf("expected region_not_found, got %v", err)
	}

	if err := page.ScrollTo(ctx, 150); err != nil {
		t.Fatalf("scroll: %v", err)
	}
	before, err := page.InlineStyle(ctx, "analysis")
	if err != nil {
		t.Fatalf("inline style: %v", err)
	}

	sink := &export.BufferSink{}
	exporter := export.NewExporter(page, page, exportfpdf.New, sink)
	settle := 50 * time.Millisecond
	exporter.Options.SettleDelay = &settle

	result, err := exporter.Export(ctx, export.ExportRequest{RegionID: "analysis", FileBaseName: "report", Title: "Smoke"})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if result.Pages != 3 {
		t.Fatalf("expected 3 pages, got %d", result.Pages)
	}
	doc, ok := sink.Document()
	if !ok || !bytes.HasPrefix(doc.Data, []byte("%PDF")) {
		t.Fatalf("expected pdf output")
	}

	scroll, err := page.ScrollY(ctx)
	if err != nil {
		t.Fatalf("scroll y: %v", err)
	}
	if scroll != 150 {
		t.Fatalf("expected scroll restored to 150, got %v", scroll)
	}
	after, err := page.InlineStyle(ctx, "analysis")
	if err != nil {
		t.Fatalf("inline style: %v", err)
	}
	if after != before {
		t.Fatalf("expected style %q, got %q", before, after)
	}
}
