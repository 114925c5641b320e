package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff(cfg, DefaultConfig()); diff != "" {
		t.Errorf("Load() difference (-got +want):\n%s", diff)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := st.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perms = %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("second Load() failed: %v", err)
	}
	if diff := cmp.Diff(again, cfg); diff != "" {
		t.Errorf("round trip difference (-got +want):\n%s", diff)
	}
}

func TestLoadNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
log_level: verbose
panel:
  lut: partial
  busy_timeout: 30s
  clear_color: purple
pins:
  busy: GPIO5
source:
  text: "ready"
refresh: "@every 1h"
battery:
  bus: "1"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	want := DefaultConfig()
	want.Panel.LUT = "partial"
	want.Panel.BusyTimeout = 30 * time.Second
	want.Pins.BUSY = "GPIO5"
	want.Source.Text = "ready"
	want.RefreshCron = "@every 1h"
	want.Battery = &BatteryConfig{Bus: "1", Addr: 0x57}
	if diff := cmp.Diff(cfg, want); diff != "" {
		t.Errorf("Load() difference (-got +want):\n%s", diff)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{
		"bad yaml":    "panel: [",
		"wide panel":  "panel:\n  width: 300\n",
		"half auth":   "basic_auth:\n  username: admin\n",
		"wrong types": "panel:\n  width: wide\n",
		"battery addr": "battery:\n  addr: 0x80\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Errorf("Load() succeeded, want error")
			}
		})
	}

	if _, err := Load(""); err == nil {
		t.Errorf("Load(\"\") succeeded, want error")
	}
	if err := Save(filepath.Join(dir, "x.yaml"), nil); err == nil {
		t.Errorf("Save(nil) succeeded, want error")
	}
}
