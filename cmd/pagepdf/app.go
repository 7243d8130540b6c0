package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	exportchromium "github.com/goliatone/go-pagepdf/adapters/chromium"
	exportfpdf "github.com/goliatone/go-pagepdf/adapters/fpdf"
	storefs "github.com/goliatone/go-pagepdf/adapters/store/fs"
	stores3 "github.com/goliatone/go-pagepdf/adapters/store/s3"
	trackerbun "github.com/goliatone/go-pagepdf/adapters/tracker/bun"
	"github.com/goliatone/go-pagepdf/config"
	"github.com/goliatone/go-pagepdf/export"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app holds the wired dependencies shared by the commands.
type app struct {
	cfg      config.Config
	log      *zap.SugaredLogger
	browser  *exportchromium.Browser
	store    export.ArtifactStore
	signer   *storefs.HMACSigner
	tracker  export.Tracker
	db       *bun.DB
	closeLog func() error
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger.Sugar(), closeLog: logger.Sync}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openTracker(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.browser = &exportchromium.Browser{
		BrowserPath:         cfg.Chromium.Path,
		Headless:            cfg.Chromium.Headless,
		Timeout:             cfg.Chromium.Timeout,
		Args:                cfg.Chromium.Args,
		ViewportWidth:       cfg.Chromium.ViewportWidth,
		ViewportHeight:      cfg.Chromium.ViewportHeight,
		BlockExternalAssets: cfg.Chromium.BlockExternalAssets,
		Logger:              a.log,
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case config.StoreFS:
		store := storefs.NewStore(a.cfg.Store.FS.Root)
		if a.cfg.Store.FS.BaseURL != "" {
			a.signer = &storefs.HMACSigner{Secret: []byte(a.cfg.Store.FS.SigningSecret)}
			store.BaseURL = a.cfg.Store.FS.BaseURL
			store.Signer = a.signer
		}
		a.store = store
	case config.StoreS3:
		s3cfg := a.cfg.Store.S3
		store, err := stores3.New(ctx, stores3.Config{
			Bucket:       s3cfg.Bucket,
			Region:       s3cfg.Region,
			Endpoint:     s3cfg.Endpoint,
			AccessKey:    s3cfg.AccessKey,
			SecretKey:    s3cfg.SecretKey,
			UseSSL:       s3cfg.UseSSL,
			UsePathStyle: s3cfg.UsePathStyle,
		})
		if err != nil {
			return fmt.Errorf("open s3 store: %w", err)
		}
		a.store = store
	case config.StoreMemory:
		a.store = export.NewMemoryStore()
	}
	if a.store != nil {
		a.log.Infof("artifact store: %s", a.cfg.Store.Driver)
	}
	return nil
}

func (a *app) openTracker(ctx context.Context) error {
	if !a.cfg.Tracker.Enabled {
		return nil
	}
	sqldb, err := sql.Open(sqliteshim.ShimName, a.cfg.Tracker.DSN)
	if err != nil {
		return fmt.Errorf("open tracker database: %w", err)
	}
	a.db = bun.NewDB(sqldb, sqlitedialect.New())
	tracker := trackerbun.NewTracker(a.db)
	if err := tracker.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate tracker: %w", err)
	}
	a.tracker = tracker
	return nil
}

// exporter returns an exporter template; callers bind a surface and sink.
func (a *app) exporter() *export.Exporter {
	exporter := export.NewExporter(nil, nil, exportfpdf.New, nil)
	exporter.Options = a.cfg.ExportOptions()
	exporter.Tracker = a.tracker
	exporter.Logger = a.log
	return exporter
}

func (a *app) Close() {
	if a.browser != nil {
		if err := a.browser.Close(); err != nil {
			a.log.Errorf("close browser: %v", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Errorf("close tracker database: %v", err)
		}
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
}
