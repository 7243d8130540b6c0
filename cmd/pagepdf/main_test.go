package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	storefs "github.com/goliatone/go-pagepdf/adapters/store/fs"
	"github.com/goliatone/go-pagepdf/config"
	"github.com/goliatone/go-pagepdf/export"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(config.LogConfig{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected debug level enabled")
	}
	if _, err := newLogger(config.LogConfig{Level: "loud", Format: "json"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestOpenStore(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.FS.Root = t.TempDir()
	cfg.Store.FS.BaseURL = "http://localhost:8080/downloads"
	cfg.Store.FS.SigningSecret = "secret"

	a := &app{cfg: cfg, log: zap.NewNop().Sugar()}
	if err := a.openStore(context.Background()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	store, ok := a.store.(*storefs.Store)
	if !ok {
		t.Fatalf("expected fs store, got %T", a.store)
	}
	if store.Signer == nil || a.signer == nil {
		t.Fatalf("expected signer to be wired")
	}

	cfg.Store.Driver = config.StoreMemory
	a = &app{cfg: cfg, log: zap.NewNop().Sugar()}
	if err := a.openStore(context.Background()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, ok := a.store.(*export.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", a.store)
	}

	cfg.Store.Driver = config.StoreNone
	a = &app{cfg: cfg, log: zap.NewNop().Sugar()}
	if err := a.openStore(context.Background()); err != nil {
		t.Fatalf("open store: %v", err)
	}
	if a.store != nil {
		t.Fatalf("expected no store, got %T", a.store)
	}
}

func TestOpenTracker(t *testing.T) {
	cfg := config.Defaults()
	cfg.Tracker.DSN = "file:" + filepath.Join(t.TempDir(), "history.db")
	a := &app{cfg: cfg, log: zap.NewNop().Sugar()}
	if err := a.openTracker(context.Background()); err != nil {
		t.Fatalf("open tracker: %v", err)
	}
	defer a.Close()

	exporter := a.exporter()
	if exporter.Tracker == nil {
		t.Fatalf("expected tracker on exporter")
	}
	if exporter.Options.CaptureWindow != cfg.Export.CaptureWindow {
		t.Fatalf("expected options from config")
	}
	id, err := a.tracker.Start(context.Background(), export.ExportRecord{RegionID: "report"})
	if err != nil || id == "" {
		t.Fatalf("start: %q %v", id, err)
	}
}

func TestCaptureCommand_RequiresSource(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"capture", "--region", "report"})
	err := root.Execute()
	if err == nil {
		t.Fatalf("expected missing source error")
	}
	if !strings.Contains(err.Error(), "url") || !strings.Contains(err.Error(), "html") {
		t.Fatalf("expected error to name url and html flags, got %v", err)
	}
}

func TestCleanupCommand_RunsSweep(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "pagepdf.yaml")
	cfg := config.Defaults()
	cfg.Store.FS.Root = filepath.Join(dir, "artifacts")
	cfg.Tracker.DSN = "file:" + filepath.Join(dir, "history.db")
	if err := config.Save(configPath, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"cleanup", "--config", configPath})
	if err := root.Execute(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if !strings.Contains(out.String(), "removed 0 expired documents") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
