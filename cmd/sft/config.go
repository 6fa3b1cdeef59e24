// go-sft
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-sft.
//
// go-sft is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-sft is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-sft; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	sft "github.com/ZaparooProject/go-sft"
	"github.com/ZaparooProject/go-sft/detection"
)

// cliConfig is the resolved configuration after defaults, the config file
// and flags have been applied in that order
type cliConfig struct {
	Port            string
	LogLevel        string
	LogFormat       string
	MetricsAddr     string
	BaudRates       []int
	Blocklist       []string
	IgnorePaths     []string
	BaudRate        int
	OpenTimeout     time.Duration
	ChunkSize       int
	MaxRetries      int
	ReplyTimeout    time.Duration
	ListenTimeout   time.Duration
	DeviceID        uint32
	ProtocolVersion uint8
	Smart           bool
	Fallback        bool
}

type fileConfig struct {
	Serial struct {
		Port        string `toml:"port"`
		BaudRate    int    `toml:"baud_rate"`
		OpenTimeout string `toml:"open_timeout"`
	} `toml:"serial"`
	Transfer struct {
		ChunkSize    int    `toml:"chunk_size"`
		MaxRetries   int    `toml:"max_retries"`
		ReplyTimeout string `toml:"reply_timeout"`
		Smart        bool   `toml:"smart"`
		Fallback     bool   `toml:"fallback"`
	} `toml:"transfer"`
	Negotiation struct {
		BaudRates       []int  `toml:"baud_rates"`
		DeviceID        uint32 `toml:"device_id"`
		ProtocolVersion uint8  `toml:"protocol_version"`
		ListenTimeout   string `toml:"listen_timeout"`
	} `toml:"negotiation"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Metrics struct {
		Addr string `toml:"addr"`
	} `toml:"metrics"`
	Detection struct {
		Blocklist   []string `toml:"blocklist"`
		IgnorePaths []string `toml:"ignore_paths"`
	} `toml:"detection"`
}

func defaultCLIConfig() cliConfig {
	def := sft.DefaultConfig()
	return cliConfig{
		LogLevel:        "info",
		LogFormat:       "auto",
		BaudRates:       def.Negotiation.BaudRates,
		Blocklist:       detection.DefaultBlocklist(),
		BaudRate:        def.Session.BaudRate,
		ChunkSize:       def.Transfer.ChunkSize,
		MaxRetries:      def.Transfer.Retry.MaxAttempts,
		ReplyTimeout:    def.Transfer.Retry.RetryTimeout,
		ListenTimeout:   def.Negotiation.ListenTimeout,
		ProtocolVersion: def.Negotiation.ProtocolVersion,
		Smart:           def.Session.Smart,
		Fallback:        def.Session.Fallback,
	}
}

// loadConfig reads path over the defaults. Keys missing from the file keep
// their default values.
func loadConfig(path string) (cliConfig, error) {
	cfg := defaultCLIConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return cliConfig{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return cliConfig{}, fmt.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
	}

	if meta.IsDefined("serial", "port") {
		cfg.Port = strings.TrimSpace(raw.Serial.Port)
	}
	if meta.IsDefined("serial", "baud_rate") {
		cfg.BaudRate = raw.Serial.BaudRate
	}
	if meta.IsDefined("serial", "open_timeout") {
		if cfg.OpenTimeout, err = parseDuration("serial.open_timeout", raw.Serial.OpenTimeout); err != nil {
			return cliConfig{}, err
		}
	}

	if meta.IsDefined("transfer", "chunk_size") {
		cfg.ChunkSize = raw.Transfer.ChunkSize
	}
	if meta.IsDefined("transfer", "max_retries") {
		cfg.MaxRetries = raw.Transfer.MaxRetries
	}
	if meta.IsDefined("transfer", "reply_timeout") {
		if cfg.ReplyTimeout, err = parseDuration("transfer.reply_timeout", raw.Transfer.ReplyTimeout); err != nil {
			return cliConfig{}, err
		}
	}
	if meta.IsDefined("transfer", "smart") {
		cfg.Smart = raw.Transfer.Smart
	}
	if meta.IsDefined("transfer", "fallback") {
		cfg.Fallback = raw.Transfer.Fallback
	}

	if meta.IsDefined("negotiation", "baud_rates") {
		cfg.BaudRates = raw.Negotiation.BaudRates
	}
	if meta.IsDefined("negotiation", "device_id") {
		cfg.DeviceID = raw.Negotiation.DeviceID
	}
	if meta.IsDefined("negotiation", "protocol_version") {
		cfg.ProtocolVersion = raw.Negotiation.ProtocolVersion
	}
	if meta.IsDefined("negotiation", "listen_timeout") {
		cfg.ListenTimeout, err = parseDuration("negotiation.listen_timeout", raw.Negotiation.ListenTimeout)
		if err != nil {
			return cliConfig{}, err
		}
	}

	if meta.IsDefined("log", "level") {
		cfg.LogLevel = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		cfg.LogFormat = strings.TrimSpace(raw.Log.Format)
	}
	if meta.IsDefined("metrics", "addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.Metrics.Addr)
	}
	if meta.IsDefined("detection", "blocklist") {
		cfg.Blocklist = raw.Detection.Blocklist
	}
	if meta.IsDefined("detection", "ignore_paths") {
		cfg.IgnorePaths = raw.Detection.IgnorePaths
	}

	return cfg, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// options converts the configuration into session options
func (c *cliConfig) options() []sft.Option {
	opts := []sft.Option{
		sft.WithBaudRate(c.BaudRate),
		sft.WithOpenTimeout(c.OpenTimeout),
		sft.WithChunkSize(c.ChunkSize),
		sft.WithMaxRetries(c.MaxRetries),
		sft.WithReplyTimeout(c.ReplyTimeout),
		sft.WithBaudRates(c.BaudRates...),
		sft.WithListenTimeout(c.ListenTimeout),
		sft.WithProtocolVersion(c.ProtocolVersion),
		sft.WithSmartMode(c.Smart),
		sft.WithManualFallback(c.Fallback),
	}
	if c.DeviceID != 0 {
		opts = append(opts, sft.WithDeviceID(c.DeviceID))
	}
	return opts
}

func (c *cliConfig) detectionOptions() detection.Options {
	return detection.Options{
		Blocklist:   c.Blocklist,
		IgnorePaths: c.IgnorePaths,
	}
}
