// Package exportchromium hosts export regions in headless Chromium tabs.
//
// A Browser lazily starts one Chromium process; every Page opened from it is
// an independent tab that implements both export.Surface (scrolling, region
// lookup, inline style) and export.Rasterizer (DevTools screenshots clipped
// to the capture window).
package exportchromium
