// Package exportfpdf assembles export documents with go-pdf/fpdf.
//
// Builders work in millimetres on a fixed page size chosen at construction
// and use the core Helvetica font, so no font files are needed at runtime.
package exportfpdf
