package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

// Default capture parameters. The viewport matches the 2.13" panel in
// landscape.
const (
	DefaultWidth      = 212
	DefaultHeight     = 104
	DefaultTimeoutSec = 30
	DefaultSelector   = "body"
)

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/status".
	URL string

	// WaitSelector is a CSS selector that must be visible before the
	// screenshot is taken. Pages that render asynchronously can expose
	// something like [data-ready="true"]. Defaults to DefaultSelector.
	WaitSelector string

	// OutputPath, if set, also receives the raw PNG screenshot.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire capture operation. If zero,
	// DefaultTimeoutSec is used.
	Timeout time.Duration
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if o.WaitSelector == "" {
		o.WaitSelector = DefaultSelector
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	return nil
}

// URL launches a headless Chromium instance via chromedp, navigates to
// opts.URL, waits for opts.WaitSelector and returns the decoded viewport
// screenshot.
//
// The result is full color; thresholding to the panel's planes is left to
// the caller.
func URL(parentCtx context.Context, opts Options) (image.Image, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	// Apply timeout to the entire capture sequence.
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var buf []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(opts.WaitSelector, chromedp.ByQuery),
		// Small extra delay to allow final paints.
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.CaptureScreenshot(&buf),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	if opts.OutputPath != "" {
		if err := os.WriteFile(opts.OutputPath, buf, 0o644); err != nil {
			return nil, fmt.Errorf("capture: failed to write PNG: %w", err)
		}
	}

	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("capture: decode screenshot: %w", err)
	}
	return img, nil
}
