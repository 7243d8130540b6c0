package exporthttp

import (
	"context"

	exportchromium "github.com/goliatone/go-pagepdf/adapters/chromium"
	"github.com/goliatone/go-pagepdf/export"
)

// Page is a loaded page hosting exportable regions.
type Page interface {
	export.Surface
	export.Rasterizer
	Close()
}

// PageOpener loads a page for one export. Each export gets its own page.
type PageOpener interface {
	OpenURL(ctx context.Context, url string) (Page, error)
	OpenHTML(ctx context.Context, document []byte, baseURL string) (Page, error)
}

// BrowserOpener opens pages as tabs of a shared headless browser.
type BrowserOpener struct {
	Browser *exportchromium.Browser
}

func (o BrowserOpener) OpenURL(ctx context.Context, url string) (Page, error) {
	if o.Browser == nil {
		return nil, export.NewError(export.KindNotImpl, "browser not configured", nil)
	}
	page, err := o.Browser.OpenURL(ctx, url)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (o BrowserOpener) OpenHTML(ctx context.Context, document []byte, baseURL string) (Page, error) {
	if o.Browser == nil {
		return nil, export.NewError(export.KindNotImpl, "browser not configured", nil)
	}
	page, err := o.Browser.OpenHTML(ctx, document, baseURL)
	if err != nil {
		return nil, err
	}
	return page, nil
}
