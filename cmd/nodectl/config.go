package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/kinectl/internal/executor"
	"github.com/danmuck/kinectl/internal/executor/relay"
	"github.com/danmuck/kinectl/internal/link"
	"github.com/danmuck/kinectl/internal/topology"
)

// nodectl config.toml key mapping to executor runtime settings.
type fileConfig struct {
	ID                 string      `toml:"id"`
	DeadTime           string      `toml:"dead_time"`
	ActuatorTimeout    string      `toml:"actuator_timeout"`
	InterActuatorDelay string      `toml:"inter_actuator_delay"`
	Stagger            string      `toml:"stagger"`
	ControlCycle       string      `toml:"control_cycle"`
	MetricsAddr        string      `toml:"metrics_addr"`
	Relay              fileRelay   `toml:"relay"`
	Link               fileLink    `toml:"link"`
	Wiring             fileWiring  `toml:"wiring"`
	Blocks             []fileBlock `toml:"blocks"`
}

type fileRelay struct {
	Driver    string `toml:"driver"`
	Chip      string `toml:"chip"`
	ActiveLow bool   `toml:"active_low"`
}

type fileLink struct {
	Transport string `toml:"transport"`
	Device    string `toml:"device"`
	Baud      int    `toml:"baud"`
	Address   string `toml:"address"`
}

// fileWiring generates a contiguous layout; [[blocks]] replaces it entirely.
type fileWiring struct {
	First             int `toml:"first"`
	Last              int `toml:"last"`
	ActuatorsPerBlock int `toml:"actuators_per_block"`
	BasePin           int `toml:"base_pin"`
}

type fileBlock struct {
	ID        int     `toml:"id"`
	Actuators [][]int `toml:"actuators"`
}

// loadNodeConfig overlays the TOML file at path on executor.DefaultConfig.
func loadNodeConfig(path string) (executor.Config, error) {
	cfg := executor.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return executor.Config{}, fmt.Errorf("load node config: %w", err)
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.ID = id
			cfg.Link.Name = id
			if blocks, ok := topology.InstallationWiring(id); ok {
				cfg.Blocks = blocks
			}
		}
	}
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"dead_time", raw.DeadTime, &cfg.DeadTime},
		{"actuator_timeout", raw.ActuatorTimeout, &cfg.ActuatorTimeout},
		{"inter_actuator_delay", raw.InterActuatorDelay, &cfg.InterActuatorDelay},
		{"stagger", raw.Stagger, &cfg.StaggerDelay},
		{"control_cycle", raw.ControlCycle, &cfg.ControlCycle},
	} {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return executor.Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if meta.IsDefined("relay", "driver") {
		kind, err := relay.ParseKind(raw.Relay.Driver)
		if err != nil {
			return executor.Config{}, err
		}
		cfg.Relay.Driver = kind
	}
	if meta.IsDefined("relay", "chip") {
		cfg.Relay.Chip = strings.TrimSpace(raw.Relay.Chip)
	}
	if meta.IsDefined("relay", "active_low") {
		cfg.Relay.ActiveLow = raw.Relay.ActiveLow
	}

	if meta.IsDefined("link", "transport") {
		cfg.Link.Transport = link.Transport(strings.ToLower(strings.TrimSpace(raw.Link.Transport)))
	}
	if meta.IsDefined("link", "device") {
		cfg.Link.Device = strings.TrimSpace(raw.Link.Device)
	}
	if meta.IsDefined("link", "baud") {
		cfg.Link.Baud = raw.Link.Baud
	}
	if meta.IsDefined("link", "address") {
		cfg.Link.Address = strings.TrimSpace(raw.Link.Address)
	}
	if meta.IsDefined("link") {
		cfg.Link = cfg.Link.WithDefaults()
		if err := cfg.Link.Validate(); err != nil {
			return executor.Config{}, err
		}
	}

	if meta.IsDefined("wiring") {
		w := raw.Wiring
		if w.ActuatorsPerBlock == 0 {
			w.ActuatorsPerBlock = executor.DefaultActuatorsPerBlock
		}
		if !meta.IsDefined("wiring", "base_pin") {
			w.BasePin = executor.DefaultRelayBasePin
		}
		if w.First < 1 || w.Last < w.First {
			return executor.Config{}, fmt.Errorf("%w: wiring range [%d,%d]", topology.ErrInvalidWiring, w.First, w.Last)
		}
		cfg.Blocks = topology.DefaultWiring(w.First, w.Last, w.ActuatorsPerBlock, w.BasePin)
	}

	if meta.IsDefined("blocks") {
		blocks := make([]topology.BlockWiring, 0, len(raw.Blocks))
		for _, fb := range raw.Blocks {
			bw := topology.BlockWiring{ID: fb.ID}
			for _, pair := range fb.Actuators {
				if len(pair) != 2 {
					return executor.Config{}, fmt.Errorf("%w: block %d actuator wants [forward, reverse]", topology.ErrInvalidWiring, fb.ID)
				}
				bw.Actuators = append(bw.Actuators, topology.ActuatorPins{Forward: pair[0], Reverse: pair[1]})
			}
			blocks = append(blocks, bw)
		}
		cfg.Blocks = topology.SortedWiring(blocks)
	}

	return cfg, nil
}
