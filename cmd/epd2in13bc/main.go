package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"periph.io/x/conn/v3/physic"

	"epd2in13bc/internal/battery"
	"epd2in13bc/internal/config"
	"epd2in13bc/internal/epd"
	appLog "epd2in13bc/internal/log"
	"epd2in13bc/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	image      string
	red        string
	text       string
	url        string
	listen     string
	clear      bool
	once       bool
	renderOnly bool
	dump       bool
	debug      bool
}

func main() {
	flags := parseFlags()

	if err := run(flags); err != nil {
		appLog.Error("epd2in13bc failed", err)
		os.Exit(1)
	}
}

func run(flags flagConfig) error {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	applyFlags(conf, flags)

	level, _ := appLog.ParseLevel(conf.LogLevel)
	appLog.SetLevel(level)

	appLog.Info("effective config",
		"panel", fmt.Sprintf("%dx%d", conf.Panel.Width, conf.Panel.Height),
		"lut", conf.Panel.LUT,
		"spi", conf.SPI.Port,
		"refresh", conf.RefreshCron,
		"listen", conf.Listen,
		"once", flags.once,
		"render_only", flags.renderOnly,
		"dump", flags.dump,
	)

	opts := appOptions{Dump: flags.dump}
	if !flags.renderOnly {
		opts.Transport = newTransport(conf)
	}
	if conf.Battery != nil {
		p, bus, err := battery.Open(conf.Battery.Bus, conf.Battery.Addr)
		if err != nil {
			appLog.Error("battery unavailable", err, "bus", conf.Battery.Bus)
		} else {
			defer bus.Close()
			opts.Battery = battery.NewCached(p, 30*time.Second)
		}
	}
	a, err := newApp(conf, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.Error("panel sleep failed", err)
		}
	}()

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if flags.clear {
		c, err := epd.ParseColor(conf.Panel.ClearColor)
		if err != nil {
			return err
		}
		return a.Clear(c)
	}

	if flags.once {
		return a.Refresh(ctx)
	}

	// First frame right away; failures are logged and retried by the
	// schedule.
	_ = a.Refresh(ctx)

	sched := cron.New()
	if _, err := sched.AddFunc(conf.RefreshCron, func() { _ = a.Refresh(ctx) }); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", conf.RefreshCron, err)
	}
	sched.Start()
	defer func() {
		<-sched.Stop().Done()
	}()

	webDone := startWeb(ctx, cancel, conf, a)

	<-ctx.Done()
	// In-flight HTTP requests finish before the panel goes to sleep.
	<-webDone
	appLog.Info("epd2in13bc exiting")
	return nil
}

// startWeb runs the HTTP API until ctx is canceled. A server failure
// cancels ctx. The returned channel is closed once the server has shut
// down, or immediately when no listen address is set.
func startWeb(ctx context.Context, cancel context.CancelFunc, conf *config.Config, r web.Refresher) <-chan struct{} {
	done := make(chan struct{})
	if conf.Listen == "" {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		if err := web.StartServer(ctx, conf, r); err != nil {
			appLog.Error("HTTP server stopped", err)
			cancel()
		}
	}()
	return done
}

// applyFlags lets the command line override the configured sources. Any
// source flag replaces the configured sources as a whole.
func applyFlags(conf *config.Config, flags flagConfig) {
	if flags.debug {
		conf.LogLevel = "debug"
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.image != "" || flags.red != "" || flags.text != "" || flags.url != "" {
		conf.Source.Image = flags.image
		conf.Source.RedImage = flags.red
		conf.Source.Text = flags.text
		conf.Source.RedText = ""
		conf.Source.URL = flags.url
	}
}

func newTransport(conf *config.Config) *epd.SPITransport {
	return epd.NewSPITransport(epd.SPIConfig{
		Port:  conf.SPI.Port,
		MaxHz: physic.Frequency(conf.SPI.MaxHz) * physic.Hertz,
		RST:   conf.Pins.RST,
		DC:    conf.Pins.DC,
		CS:    conf.Pins.CS,
		BUSY:  conf.Pins.BUSY,
	})
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/epd2in13bc/config.yaml", "Path to config file (created with defaults if missing)")
	flag.StringVar(&cfg.image, "image", "", "Image file for the black layer (png, jpeg, gif, bmp)")
	flag.StringVar(&cfg.red, "red", "", "Image file for the red layer")
	flag.StringVar(&cfg.text, "text", "", "Text to draw on the black layer")
	flag.StringVar(&cfg.url, "url", "", "Web page to capture with headless Chromium as the black layer")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.clear, "clear", false, "Clear the panel to panel.clear_color and exit")
	flag.BoolVar(&cfg.once, "once", false, "Run one render+display cycle and exit")
	flag.BoolVar(&cfg.renderOnly, "render-only", false, "Render only; print a terminal preview instead of touching the display")
	flag.BoolVar(&cfg.dump, "dump", false, "Dump debug artifacts (black.bin, red.bin, preview.png) into dump_dir")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug logging")

	flag.Parse()

	return cfg
}
