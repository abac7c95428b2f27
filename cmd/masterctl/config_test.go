package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/kinectl/internal/link"
	"github.com/danmuck/kinectl/internal/master"
	"github.com/danmuck/kinectl/internal/topology"
)

func TestLoadMasterConfigExample(t *testing.T) {
	cfg, err := loadMasterConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("example config invalid: %v", err)
	}
	if cfg.ID != "master.gallery" {
		t.Fatalf("unexpected id: %q", cfg.ID)
	}
	if cfg.AdmissionCap != 2 || cfg.DeadLinkMultiplier != 3 {
		t.Fatalf("unexpected cap/multiplier: %d/%d", cfg.AdmissionCap, cfg.DeadLinkMultiplier)
	}
	if cfg.DefaultMoveDuration != master.DefaultMoveDuration || cfg.DefaultMoveDuration != 6*time.Second {
		t.Fatalf("unexpected default move: %v", cfg.DefaultMoveDuration)
	}
	if cfg.HeartbeatInterval != 2*time.Second || cfg.StaggerDelay != 300*time.Millisecond {
		t.Fatalf("unexpected timings: heartbeat=%v stagger=%v", cfg.HeartbeatInterval, cfg.StaggerDelay)
	}
	if cfg.HTTPAddr != "127.0.0.1:8080" {
		t.Fatalf("unexpected http addr: %q", cfg.HTTPAddr)
	}
	if len(cfg.CorsOrigins) != 2 || cfg.CorsOrigins[1] != "http://kiosk.local" {
		t.Fatalf("unexpected cors origins: %+v", cfg.CorsOrigins)
	}
	if len(cfg.Links) != 2 {
		t.Fatalf("unexpected links: %+v", cfg.Links)
	}
	if cfg.Links[0].Transport != link.TransportSerial || cfg.Links[0].Device != "/dev/ttyACM0" {
		t.Fatalf("unexpected mega1 link: %+v", cfg.Links[0])
	}
	if cfg.Links[1].Transport != link.TransportTCP || cfg.Links[1].Address != "10.0.0.12:7101" {
		t.Fatalf("unexpected mega2 link: %+v", cfg.Links[1])
	}
	if owner, _ := cfg.Partition.LinkFor(9); owner != "mega2" {
		t.Fatalf("block 9 owned by %q", owner)
	}
}

func TestLoadMasterConfigDefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
admission_cap = 4
heartbeat = "500ms"
[[links]]
name = "solo"
first = 1
last = 6
transport = "tcp"
address = "127.0.0.1:7200"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadMasterConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := master.DefaultConfig()
	if cfg.ID != def.ID || cfg.StaggerDelay != def.StaggerDelay || cfg.UDPAddr != def.UDPAddr {
		t.Fatalf("unset keys lost their defaults: %+v", cfg)
	}
	if cfg.AdmissionCap != 4 || cfg.HeartbeatInterval != 500*time.Millisecond {
		t.Fatalf("overrides not applied: cap=%d heartbeat=%v", cfg.AdmissionCap, cfg.HeartbeatInterval)
	}
	// total_blocks still 15 while solo only covers 1-6.
	if err := cfg.Validate(); !errors.Is(err, topology.ErrInvalidPartition) {
		t.Fatalf("expected partition error, got %v", err)
	}
}

func TestLoadMasterConfigRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"duration":  `tick = "soon"`,
		"ring":      "[[rings]]\nring = \"middle\"\nfirst = 1\nlast = 2\n",
		"transport": "[[links]]\nname = \"mega1\"\nfirst = 1\nlast = 8\ntransport = \"carrier-pigeon\"\n",
		"serial":    "[[links]]\nname = \"mega1\"\nfirst = 1\nlast = 8\ntransport = \"serial\"\n",
	} {
		path := filepath.Join(dir, name+".toml")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := loadMasterConfig(path); err == nil {
			t.Fatalf("%s: expected load error", name)
		}
	}
	if _, err := loadMasterConfig(filepath.Join(dir, "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestCheckCommandPrintsLayout(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"check", "--config", "ex.config.toml"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"master master.gallery: 15 blocks, cap 2",
		"mega1 serial /dev/ttyACM0 blocks 1-8",
		"mega2 tcp 10.0.0.12:7101 blocks 9-15",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("check output missing %q:\n%s", want, out)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(buf.String(), "masterctl dev") {
		t.Fatalf("unexpected version output: %s", buf.String())
	}
}
