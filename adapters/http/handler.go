package exporthttp

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-pagepdf/export"
	"github.com/goliatone/go-router"
	"golang.org/x/sync/semaphore"
)

const (
	defaultBasePath = "/api/exports"
	defaultLinkTTL  = 15 * time.Minute
)

// Config configures the HTTP adapter.
type Config struct {
	// Exporter supplies options, document factory, tracker and logger. Its
	// surface and sink are replaced per request.
	Exporter *export.Exporter
	Opener   PageOpener
	// Store, when set, also keeps a copy of every document.
	Store          export.ArtifactStore
	StorePrefix    string
	StoreTTL       time.Duration
	BasePath       string
	MaxConcurrent  int64
	RequestTimeout time.Duration
	// LinkTTL bounds the download links handed out in history responses.
	// Stores without signed URLs fall back to the download route. Negative
	// disables signing.
	LinkTTL time.Duration
	// Verifier enables signed downloads under /downloads/* for stores that
	// issue their own signed URLs.
	Verifier DownloadVerifier
	Logger   export.Logger
}

// DownloadVerifier checks a signed download link.
type DownloadVerifier interface {
	Verify(key, expires, signature string) error
}

// Handler exposes export HTTP endpoints.
type Handler struct {
	cfg      Config
	sem      *semaphore.Weighted
	validate *validator.Validate
	basePath string
	logger   export.Logger
	tracker  export.Tracker
}

// NewHandler creates a new HTTP handler.
func NewHandler(cfg Config) *Handler {
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 2
	}
	basePath := strings.TrimRight(cfg.BasePath, "/")
	if basePath == "" {
		basePath = defaultBasePath
	}
	if cfg.LinkTTL == 0 {
		cfg.LinkTTL = defaultLinkTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = export.NopLogger{}
	}
	h := &Handler{
		cfg:      cfg,
		sem:      semaphore.NewWeighted(limit),
		validate: newValidator(),
		basePath: basePath,
		logger:   logger,
	}
	if cfg.Exporter != nil {
		h.tracker = cfg.Exporter.Tracker
	}
	return h
}

// NewApp returns a go-router server on fiber with the export routes
// registered.
func NewApp(cfg Config) router.Server[*fiber.App] {
	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return fiber.New(fiber.Config{
			AppName:               "pagepdf",
			DisableStartupMessage: true,
			BodyLimit:             16 * 1024 * 1024,
		})
	})
	NewHandler(cfg).RegisterRoutes(srv.Router())
	return srv
}

type routeRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}

// RegisterRoutes registers the export routes on a go-router router.
func (h *Handler) RegisterRoutes(r routeRegistrar) {
	r.Get("/healthz", h.health)
	r.Post(h.basePath+"/pdf", h.create)
	r.Get(h.basePath, h.list)
	r.Get(h.basePath+"/:id", h.status)
	r.Get(h.basePath+"/:id/download", h.download)
	if h.cfg.Verifier != nil && h.cfg.Store != nil {
		r.Get("/downloads/*", h.signedDownload)
	}
}

func (h *Handler) health(c router.Context) error {
	return c.JSON(fiber.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) create(c router.Context) error {
	if h.cfg.Exporter == nil || h.cfg.Opener == nil {
		return writeError(c, export.NewError(export.KindNotImpl, "exporter not configured", nil))
	}

	var payload exportPayload
	if err := c.Bind(&payload); err != nil {
		return writeError(c, export.NewError(export.KindValidation, "invalid request body", err))
	}
	if err := validatePayload(h.validate, payload); err != nil {
		return writeError(c, err)
	}

	ctx := c.Context()
	if h.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.RequestTimeout)
		defer cancel()
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return writeError(c, export.NewError(export.KindTimeout, "export capacity exhausted", err))
	}
	defer h.sem.Release(1)

	page, err := h.openPage(ctx, payload)
	if err != nil {
		h.logger.Errorf("open page for region %q: %v", payload.RegionID, err)
		return writeError(c, err)
	}
	defer page.Close()

	buffer := &export.BufferSink{}
	sinks := export.MultiSink{buffer}
	if h.cfg.Store != nil {
		sinks = append(sinks, export.StoreSink{
			Store:  h.cfg.Store,
			Prefix: h.cfg.StorePrefix,
			TTL:    h.cfg.StoreTTL,
		})
	}
	exporter := h.cfg.Exporter.WithSurface(page, page)
	exporter.Sink = sinks

	result, err := exporter.Export(ctx, payload.toRequest())
	if err != nil {
		return writeError(c, err)
	}
	doc, ok := buffer.Document()
	if !ok {
		return writeError(c, export.NewError(export.KindDelivery, "document was not delivered", nil))
	}

	contentType := doc.ContentType
	if contentType == "" {
		contentType = export.ContentTypePDF
	}
	c.SetHeader(fiber.HeaderContentType, contentType)
	c.SetHeader(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", doc.Filename))
	c.SetHeader("X-Export-ID", result.ID)
	c.SetHeader("X-Export-Pages", strconv.Itoa(result.Pages))
	return c.Status(fiber.StatusOK).Send(doc.Data)
}

func (h *Handler) openPage(ctx context.Context, payload exportPayload) (Page, error) {
	if payload.HTML != "" {
		return h.cfg.Opener.OpenHTML(ctx, []byte(payload.HTML), payload.BaseURL)
	}
	return h.cfg.Opener.OpenURL(ctx, payload.URL)
}

func (h *Handler) list(c router.Context) error {
	if h.tracker == nil {
		return writeError(c, export.NewError(export.KindNotImpl, "export history not configured", nil))
	}
	filter, err := parseFilter(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx := c.Context()
	records, err := h.tracker.List(ctx, filter)
	if err != nil {
		return writeError(c, err)
	}
	resp := listResponse{Exports: make([]recordResponse, 0, len(records))}
	for _, record := range records {
		resp.Exports = append(resp.Exports, toRecordResponse(record, h.downloadURL(ctx, record)))
	}
	return c.JSON(fiber.StatusOK, resp)
}

func (h *Handler) status(c router.Context) error {
	if h.tracker == nil {
		return writeError(c, export.NewError(export.KindNotImpl, "export history not configured", nil))
	}
	ctx := c.Context()
	record, err := h.tracker.Status(ctx, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.StatusOK, toRecordResponse(record, h.downloadURL(ctx, record)))
}

func (h *Handler) download(c router.Context) error {
	if h.tracker == nil || h.cfg.Store == nil {
		return writeError(c, export.NewError(export.KindNotImpl, "artifact downloads not configured", nil))
	}
	record, err := h.tracker.Status(c.Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	if record.State != export.StateCompleted || record.Artifact.Key == "" {
		return writeError(c, export.NewError(export.KindNotFound, "export has no stored artifact", nil))
	}

	return h.sendArtifact(c, record.Artifact.Key, record.Filename)
}

func (h *Handler) signedDownload(c router.Context) error {
	key, err := url.PathUnescape(c.Param("*"))
	if err != nil {
		return writeError(c, export.NewError(export.KindValidation, "invalid download path", err))
	}
	if err := h.cfg.Verifier.Verify(key, c.Query("expires"), c.Query("signature")); err != nil {
		return writeError(c, err)
	}
	return h.sendArtifact(c, key, "")
}

func (h *Handler) sendArtifact(c router.Context, key, fallbackName string) error {
	reader, meta, err := h.cfg.Store.Open(c.Context(), key)
	if err != nil {
		return writeError(c, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return writeError(c, export.NewError(export.KindInternal, "read artifact failed", err))
	}

	filename := meta.Filename
	if filename == "" {
		filename = fallbackName
	}
	contentType := meta.ContentType
	if contentType == "" {
		contentType = export.ContentTypePDF
	}
	c.SetHeader(fiber.HeaderContentType, contentType)
	c.SetHeader(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Status(fiber.StatusOK).Send(data)
}

// downloadURL prefers a signed store link and falls back to the download
// route of the export.
func (h *Handler) downloadURL(ctx context.Context, record export.ExportRecord) string {
	if h.cfg.Store == nil || record.Artifact.Key == "" {
		return ""
	}
	if h.cfg.LinkTTL > 0 {
		signed, err := h.cfg.Store.SignedURL(ctx, record.Artifact.Key, h.cfg.LinkTTL)
		if err == nil {
			return signed
		}
		if export.KindFromError(err) != export.KindNotImpl {
			h.logger.Errorf("sign download link for export %s: %v", record.ID, err)
		}
	}
	return h.basePath + "/" + url.PathEscape(record.ID) + "/download"
}
