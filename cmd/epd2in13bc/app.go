package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"epd2in13bc/internal/battery"
	"epd2in13bc/internal/capture"
	"epd2in13bc/internal/config"
	"epd2in13bc/internal/convert"
	"epd2in13bc/internal/epd"
	appLog "epd2in13bc/internal/log"
	"epd2in13bc/internal/preview"
	"epd2in13bc/internal/render"
	"epd2in13bc/internal/web"
)

// captureFunc matches capture.URL.
type captureFunc func(ctx context.Context, opts capture.Options) (image.Image, error)

// app owns the panel and serializes every access to it. The cron job, the
// web API and the one-shot CLI path all go through Refresh or Clear.
//
// mu is held for a whole panel operation, which can block on BUSY. The
// fields read by Status and LastFrame live under statusMu so the web API
// stays responsive meanwhile.
type app struct {
	mu sync.Mutex

	cfg      *config.Config
	geom     epd.Geometry
	dev      *epd.Dev // nil when rendering only
	lut      epd.LUT
	renderer *render.Renderer
	term     *preview.Terminal // set when rendering only
	dump     bool
	capture  captureFunc
	battery  battery.Reader // nil without a battery
	panel    string

	statusMu    sync.Mutex
	ready       bool
	refreshes   int
	lastRefresh time.Time
	lastErr     error
	frame       *preview.Frame
}

type appOptions struct {
	// Transport drives the panel. Nil selects render-only mode.
	Transport epd.Transport
	// Terminal receives a preview of every frame in render-only mode.
	Terminal *preview.Terminal
	Dump     bool
	// Battery, if set, is reported by Status.
	Battery battery.Reader
}

func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	lut, ok := epd.LUTByName(cfg.Panel.LUT)
	if !ok {
		return nil, fmt.Errorf("unknown lut %q", cfg.Panel.LUT)
	}

	geom := epd.Geometry{Width: cfg.Panel.Width, Height: cfg.Panel.Height}
	if err := geom.Validate(); err != nil {
		return nil, err
	}

	r, err := render.New(render.Options{
		Size:      geom.Transposed().Size(),
		FontPath:  cfg.Source.Font,
		FontSize:  cfg.Source.FontSize,
		Rotate180: cfg.Source.Rotate180,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		geom:     geom,
		lut:      lut,
		renderer: r,
		dump:     opts.Dump,
		capture:  capture.URL,
		battery:  opts.Battery,
		panel:    "render-only",
	}

	if opts.Transport == nil {
		a.term = opts.Terminal
		if a.term == nil {
			a.term = preview.NewTerminal(nil)
		}
		return a, nil
	}

	a.dev, err = epd.New(opts.Transport, &epd.Opts{
		Geometry:    geom,
		BusyTimeout: cfg.Panel.BusyTimeout,
		Logger:      appLog.Default(),
	})
	if err != nil {
		return nil, err
	}
	a.panel = a.dev.String()
	return a, nil
}

// Refresh renders the configured sources and shows them.
func (a *app) Refresh(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	f, err := a.refresh(ctx)

	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.syncReady()
	a.lastErr = err
	if f != nil {
		a.frame = f
	}
	if err != nil {
		appLog.Error("refresh failed", err)
		return err
	}
	a.refreshes++
	a.lastRefresh = time.Now()
	appLog.Info("refresh done", "elapsed", time.Since(start).Round(time.Millisecond), "red", f.Red != nil)
	return nil
}

// refresh returns the rendered frame even when showing it failed.
func (a *app) refresh(ctx context.Context) (*preview.Frame, error) {
	f, err := a.render(ctx)
	if err != nil {
		return nil, err
	}

	if a.dump {
		if err := f.Dump(a.cfg.DumpDir); err != nil {
			return f, fmt.Errorf("dump: %w", err)
		}
		appLog.Info("dumped frame", "dir", a.cfg.DumpDir)
	}

	if a.dev == nil {
		return f, a.term.DrawFrame(f)
	}

	if err := a.ensureReady(); err != nil {
		return f, err
	}
	layers := epd.Mono(f.Black)
	if f.Red != nil {
		layers = epd.BlackRed(f.Black, f.Red)
	}
	if err := a.dev.Display(layers); err != nil {
		return f, err
	}
	return f, a.maybeSleep()
}

// render composes both layers on the landscape canvas and packs them.
func (a *app) render(ctx context.Context) (*preview.Frame, error) {
	src := a.cfg.Source

	black := render.Layer{Text: src.Text}
	switch {
	case src.URL != "":
		img, err := a.capture(ctx, capture.Options{
			URL:    src.URL,
			Width:  a.geom.Height,
			Height: a.geom.Width,
		})
		if err != nil {
			return nil, err
		}
		black.Base = img
	case src.Image != "":
		img, err := render.LoadImage(src.Image)
		if err != nil {
			return nil, err
		}
		black.Base = img
	}

	red := render.Layer{Text: src.RedText}
	if src.RedImage != "" {
		img, err := render.LoadImage(src.RedImage)
		if err != nil {
			return nil, err
		}
		red.Base = img
	}

	if src.SplitRed && black.Base != nil {
		b, r := convert.Split(black.Base)
		black.Base = b
		if red.Base == nil && convert.HasInk(r) {
			red.Base = r
		}
	}

	pack := a.geom.Pack
	if a.dev != nil {
		pack = a.dev.GetBuffer
	}

	f := &preview.Frame{Geometry: a.geom, Landscape: true}
	var err error
	if f.Black, err = pack(a.renderer.Render(black)); err != nil {
		return nil, err
	}
	if !red.Empty() {
		if f.Red, err = pack(a.renderer.Render(red)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Clear fills the panel with c.
func (a *app) Clear(c epd.Color) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dev == nil {
		return errors.New("clear needs a panel; drop -render-only")
	}
	defer a.publishReady()
	if err := a.ensureReady(); err != nil {
		return err
	}
	if err := a.dev.Clear(c); err != nil {
		return err
	}
	appLog.Info("panel cleared", "color", c)
	return a.maybeSleep()
}

// syncReady copies the panel state for Status. Callers hold mu and
// statusMu.
func (a *app) syncReady() {
	a.ready = a.dev != nil && a.dev.Ready()
}

func (a *app) publishReady() {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	a.syncReady()
}

func (a *app) ensureReady() error {
	if a.dev.Ready() {
		return nil
	}
	return a.dev.Init(a.lut)
}

func (a *app) maybeSleep() error {
	if !a.cfg.Panel.SleepAfterDisplay {
		return nil
	}
	return a.dev.Sleep()
}

// Close puts an awake panel to sleep.
func (a *app) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dev == nil || !a.dev.Ready() {
		return nil
	}
	defer a.publishReady()
	return a.dev.Sleep()
}

// Status implements web.Refresher. It never waits for the panel.
func (a *app) Status() web.Status {
	a.statusMu.Lock()
	s := web.Status{
		Panel:       a.panel,
		Ready:       a.ready,
		Refreshes:   a.refreshes,
		LastRefresh: a.lastRefresh,
		Schedule:    a.cfg.RefreshCron,
	}
	if a.lastErr != nil {
		s.LastError = a.lastErr.Error()
	}
	if a.frame != nil {
		s.HasRed = a.frame.Red != nil
	}
	a.statusMu.Unlock()

	if a.battery != nil {
		b, err := a.battery.Read(context.Background())
		if err != nil {
			appLog.Debug("battery read failed", "err", err)
		} else {
			s.Battery = &b
		}
	}
	return s
}

// LastFrame implements web.Refresher.
func (a *app) LastFrame() *preview.Frame {
	a.statusMu.Lock()
	defer a.statusMu.Unlock()
	return a.frame
}

var _ web.Refresher = &app{}
