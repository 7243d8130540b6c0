package exportchromium

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/goliatone/go-pagepdf/export"
)

const (
	defaultViewportWidth  = 1280
	defaultViewportHeight = 1200
	defaultTimeout        = 30 * time.Second
)

// Browser owns a shared headless Chromium instance. Each opened Page is a
// separate tab, so concurrent exports never share scroll or style state.
type Browser struct {
	BrowserPath    string
	Headless       bool
	Timeout        time.Duration
	Args           []string
	ViewportWidth  int64
	ViewportHeight int64
	// BlockExternalAssets stops the tab from fetching http(s) resources.
	BlockExternalAssets bool
	Logger              export.Logger

	initOnce      sync.Once
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// OpenURL opens a tab and navigates it to url.
func (b *Browser) OpenURL(ctx context.Context, url string) (*Page, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, export.NewError(export.KindValidation, "page url is required", nil)
	}
	return b.open(ctx, chromedp.Navigate(url))
}

// OpenHTML opens a tab with the given document. A <base> tag is injected when
// baseURL is set so relative assets resolve.
func (b *Browser) OpenHTML(ctx context.Context, document []byte, baseURL string) (*Page, error) {
	if len(document) == 0 {
		return nil, export.NewError(export.KindValidation, "page html is required", nil)
	}
	content := string(injectBaseURL(document, baseURL))
	return b.open(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, content).Do(ctx)
		}),
	)
}

func (b *Browser) open(ctx context.Context, load ...chromedp.Action) (*Page, error) {
	if b == nil {
		return nil, export.NewError(export.KindInternal, "chromium browser is nil", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := b.ensureBrowser(); err != nil {
		return nil, export.NewError(export.KindInternal, "chromium browser init failed", err)
	}

	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	// The first Run allocates the tab; it must not carry a request deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, export.NewError(export.KindInternal, "chromium tab allocation failed", err)
	}

	p := &Page{tabCtx: tabCtx, cancel: cancel, timeout: b.timeout(), logger: b.logger()}

	actions := []chromedp.Action{
		emulation.SetDeviceMetricsOverride(b.viewportWidth(), b.viewportHeight(), 1, false),
	}
	if b.BlockExternalAssets {
		actions = append(actions,
			network.Enable(),
			network.SetBlockedURLs([]string{"http://*", "https://*"}),
		)
	}
	actions = append(actions, load...)
	actions = append(actions, chromedp.WaitReady("body", chromedp.ByQuery))

	if err := p.run(ctx, actions...); err != nil {
		p.Close()
		return nil, wrapRunError("chromium page load failed", err)
	}
	return p, nil
}

// Close releases Chromium resources if they have been initialized.
func (b *Browser) Close() error {
	if b == nil {
		return nil
	}
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}

func (b *Browser) ensureBrowser() error {
	b.initOnce.Do(func() {
		options := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		if b.BrowserPath != "" {
			options = append(options, chromedp.ExecPath(b.BrowserPath))
		}
		options = append(options, chromedp.Flag("headless", b.Headless))
		options = append(options, chromedp.WindowSize(int(b.viewportWidth()), int(b.viewportHeight())))
		options = append(options, allocatorOptionsFromArgs(b.Args)...)

		b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), options...)
		b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx,
			chromedp.WithLogf(func(format string, args ...any) {
				b.logger().Debugf(format, args...)
			}),
		)
	})
	if b.allocCtx == nil || b.browserCtx == nil {
		return errors.New("chromium allocator unavailable")
	}
	return nil
}

func (b *Browser) timeout() time.Duration {
	if b.Timeout > 0 {
		return b.Timeout
	}
	return defaultTimeout
}

func (b *Browser) viewportWidth() int64 {
	if b.ViewportWidth > 0 {
		return b.ViewportWidth
	}
	return defaultViewportWidth
}

func (b *Browser) viewportHeight() int64 {
	if b.ViewportHeight > 0 {
		return b.ViewportHeight
	}
	return defaultViewportHeight
}

func (b *Browser) logger() export.Logger {
	if b.Logger == nil {
		return export.NopLogger{}
	}
	return b.Logger
}

func injectBaseURL(htmlInput []byte, baseURL string) []byte {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return htmlInput
	}

	lower := strings.ToLower(string(htmlInput))
	if strings.Contains(lower, "<base") {
		return htmlInput
	}

	baseTag := fmt.Sprintf(`<base href="%s">`, html.EscapeString(baseURL))
	if headIdx := strings.Index(lower, "<head"); headIdx >= 0 {
		if end := strings.Index(lower[headIdx:], ">"); end >= 0 {
			insertPos := headIdx + end + 1
			return append(append([]byte{}, htmlInput[:insertPos]...), append([]byte(baseTag), htmlInput[insertPos:]...)...)
		}
	}

	if htmlIdx := strings.Index(lower, "<html"); htmlIdx >= 0 {
		if end := strings.Index(lower[htmlIdx:], ">"); end >= 0 {
			insertPos := htmlIdx + end + 1
			injected := fmt.Sprintf("<head>%s</head>", baseTag)
			return append(append([]byte{}, htmlInput[:insertPos]...), append([]byte(injected), htmlInput[insertPos:]...)...)
		}
	}

	return append([]byte(baseTag), htmlInput...)
}

func allocatorOptionsFromArgs(args []string) []chromedp.ExecAllocatorOption {
	options := make([]chromedp.ExecAllocatorOption, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		arg = strings.TrimPrefix(arg, "--")
		if arg == "" {
			continue
		}
		if name, value, ok := strings.Cut(arg, "="); ok {
			options = append(options, chromedp.Flag(name, value))
			continue
		}
		options = append(options, chromedp.Flag(arg, true))
	}
	return options
}
