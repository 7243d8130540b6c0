package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goliatone/go-pagepdf/export"
	"github.com/spf13/cobra"
)

type captureFlags struct {
	url      string
	htmlPath string
	baseURL  string
	region   string
	name     string
	title    string
	out      string
}

func newCaptureCommand(configPath *string) *cobra.Command {
	flags := &captureFlags{}
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Export one region of a page to a PDF",
		Example: "  pagepdf capture --url https://app.local/reports/42 --region report --name report --title \"Quarterly report\" --out .\n" +
			"  pagepdf capture --html page.html --region invoice --name invoice",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapture(cmd, *configPath, flags)
		},
	}
	cmd.Flags().StringVar(&flags.url, "url", "", "page URL hosting the region")
	cmd.Flags().StringVar(&flags.htmlPath, "html", "", "HTML file hosting the region")
	cmd.Flags().StringVar(&flags.baseURL, "base-url", "", "base URL for relative assets of --html")
	cmd.Flags().StringVar(&flags.region, "region", "", "id of the element to export")
	cmd.Flags().StringVar(&flags.name, "name", "export", "file base name; the date and .pdf are appended")
	cmd.Flags().StringVar(&flags.title, "title", "", "document title printed on the first page")
	cmd.Flags().StringVar(&flags.out, "out", "", "directory to write the PDF to")
	_ = cmd.MarkFlagRequired("region")
	cmd.MarkFlagsOneRequired("url", "html")
	cmd.MarkFlagsMutuallyExclusive("url", "html")
	return cmd
}

func runCapture(cmd *cobra.Command, configPath string, flags *captureFlags) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	var page interface {
		export.Surface
		export.Rasterizer
		Close()
	}
	if flags.htmlPath != "" {
		document, err := os.ReadFile(flags.htmlPath)
		if err != nil {
			return fmt.Errorf("read html: %w", err)
		}
		page, err = a.browser.OpenHTML(ctx, document, flags.baseURL)
		if err != nil {
			return err
		}
	} else {
		page, err = a.browser.OpenURL(ctx, flags.url)
		if err != nil {
			return err
		}
	}
	defer page.Close()

	buffer := &export.BufferSink{}
	sinks := export.MultiSink{buffer}
	if a.store != nil {
		sinks = append(sinks, export.StoreSink{
			Store:  a.store,
			Prefix: a.cfg.Store.Prefix,
			TTL:    a.cfg.Store.TTL,
		})
	}

	exporter := a.exporter().WithSurface(page, page)
	exporter.Sink = sinks
	result, err := exporter.Export(ctx, export.ExportRequest{
		RegionID:     flags.region,
		FileBaseName: flags.name,
		Title:        flags.title,
	})
	if err != nil {
		return err
	}

	if flags.out != "" {
		doc, _ := buffer.Document()
		target := filepath.Join(flags.out, doc.Filename)
		if err := os.WriteFile(target, doc.Data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), target)
	}
	if result.Artifact.Key != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "stored %s (%d pages, %d bytes) as %s\n", result.Filename, result.Pages, result.Bytes, result.Artifact.Key)
	}
	return nil
}
