package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/kinectl/internal/link"
	"github.com/danmuck/kinectl/internal/master"
	"github.com/danmuck/kinectl/internal/protocol"
	"github.com/danmuck/kinectl/internal/topology"
)

// masterctl config.toml key mapping to master runtime settings.
type fileConfig struct {
	ID                 string     `toml:"id"`
	TotalBlocks        int        `toml:"total_blocks"`
	AdmissionCap       int        `toml:"admission_cap"`
	DefaultMove        string     `toml:"default_move"`
	Tick               string     `toml:"tick"`
	Heartbeat          string     `toml:"heartbeat"`
	DeadLinkMultiplier int        `toml:"dead_link_multiplier"`
	Stagger            string     `toml:"stagger"`
	UDPAddr            string     `toml:"udp_addr"`
	HTTPAddr           string     `toml:"http_addr"`
	CorsOrigins        []string   `toml:"cors_origins"`
	ReplyTimeout       string     `toml:"reply_timeout"`
	Links              []fileLink `toml:"links"`
	Rings              []fileRing `toml:"rings"`
}

type fileLink struct {
	Name      string `toml:"name"`
	First     int    `toml:"first"`
	Last      int    `toml:"last"`
	Transport string `toml:"transport"`
	Device    string `toml:"device"`
	Baud      int    `toml:"baud"`
	Address   string `toml:"address"`
}

type fileRing struct {
	Ring  string `toml:"ring"`
	First int    `toml:"first"`
	Last  int    `toml:"last"`
}

// loadMasterConfig overlays the TOML file at path on master.DefaultConfig.
func loadMasterConfig(path string) (master.Config, error) {
	cfg := master.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return master.Config{}, fmt.Errorf("load master config: %w", err)
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.ID = id
		}
	}
	if meta.IsDefined("total_blocks") {
		cfg.Partition.TotalBlocks = raw.TotalBlocks
	}
	if meta.IsDefined("admission_cap") {
		cfg.AdmissionCap = raw.AdmissionCap
	}
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"default_move", raw.DefaultMove, &cfg.DefaultMoveDuration},
		{"tick", raw.Tick, &cfg.TickInterval},
		{"heartbeat", raw.Heartbeat, &cfg.HeartbeatInterval},
		{"stagger", raw.Stagger, &cfg.StaggerDelay},
		{"reply_timeout", raw.ReplyTimeout, &cfg.ReplyTimeout},
	} {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return master.Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("dead_link_multiplier") {
		cfg.DeadLinkMultiplier = raw.DeadLinkMultiplier
	}
	if meta.IsDefined("udp_addr") {
		cfg.UDPAddr = strings.TrimSpace(raw.UDPAddr)
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}

	if meta.IsDefined("links") {
		ranges := make([]topology.LinkRange, 0, len(raw.Links))
		links := make([]link.Config, 0, len(raw.Links))
		for _, fl := range raw.Links {
			name := strings.TrimSpace(fl.Name)
			ranges = append(ranges, topology.LinkRange{Name: name, First: fl.First, Last: fl.Last})
			lc := link.DefaultConfig()
			lc.Name = name
			if t := strings.TrimSpace(fl.Transport); t != "" {
				lc.Transport = link.Transport(strings.ToLower(t))
			}
			lc.Device = strings.TrimSpace(fl.Device)
			lc.Address = strings.TrimSpace(fl.Address)
			if fl.Baud > 0 {
				lc.Baud = fl.Baud
			}
			if err := lc.Validate(); err != nil {
				return master.Config{}, err
			}
			links = append(links, lc)
		}
		cfg.Partition.Links = ranges
		cfg.Links = links
	}

	if meta.IsDefined("rings") {
		rings := make([]topology.RingRange, 0, len(raw.Rings))
		for _, fr := range raw.Rings {
			ring, err := protocol.ParseRing(fr.Ring)
			if err != nil {
				return master.Config{}, fmt.Errorf("parse rings: %w", err)
			}
			rings = append(rings, topology.RingRange{Ring: ring, First: fr.First, Last: fr.Last})
		}
		cfg.Partition.Rings = rings
	}

	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
