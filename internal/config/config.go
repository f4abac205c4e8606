// internal/config/config.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package config loads the system's INI-style configuration
// into a plain Go value, threaded through the composition root instead of
// held as process-global state.
package config

import (
	"time"

	"gopkg.in/ini.v1"
)

// Config mirrors the INI file's section layout. Every field has a default
// applied when its key, or the whole file, is absent.
type Config struct {
	System       System
	Paths        Paths
	MineDropPlan MineDropPlan
	Weapon       Weapon
}

type System struct {
	MaxLaunchTubes           int
	UpdateIntervalMs         int
	EngagementPlanIntervalMs int
	StatusReportIntervalMs   int
	CommandWorkers           int
}

type Paths struct {
	MineDataPath string
	LogPath      string
	ConfigPath   string
}

type MineDropPlan struct {
	MaxPlanLists    int
	MaxPlansPerList int
}

type Weapon struct {
	DefaultLaunchDelay float64
	ALMMaxRange        float64
	ALMSpeed           float64
	ASMMaxRange        float64
	ASMSpeed           float64
	MineSpeed          float64
}

// Default returns the configuration used when no file, or
// no matching key, is present.
func Default() Config {
	return Config{
		System: System{
			MaxLaunchTubes:           6,
			UpdateIntervalMs:         100,
			EngagementPlanIntervalMs: 1000,
			StatusReportIntervalMs:   1000,
			CommandWorkers:           4,
		},
		Paths: Paths{
			MineDataPath: "mine-data",
			LogPath:      "wcs-logs",
			ConfigPath:   "",
		},
		MineDropPlan: MineDropPlan{
			MaxPlanLists:    15,
			MaxPlansPerList: 15,
		},
		Weapon: Weapon{
			DefaultLaunchDelay: 3.0,
			ALMMaxRange:        50,
			ALMSpeed:           300,
			ASMMaxRange:        100,
			ASMSpeed:           400,
			MineSpeed:          5.0,
		},
	}
}

// Load reads path (an INI file) over Default(), leaving defaults in place
// for any section or key the file omits. A missing path is not an error:
// it returns Default() unchanged; missing keys fall back to defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := ini.LoadSources(ini.LoadOptions{Loose: true, AllowShadows: true}, path)
	if err != nil {
		return cfg, err
	}

	sys := f.Section("System")
	cfg.System.MaxLaunchTubes = sys.Key("MaxLaunchTubes").MustInt(cfg.System.MaxLaunchTubes)
	cfg.System.UpdateIntervalMs = sys.Key("UpdateIntervalMs").MustInt(cfg.System.UpdateIntervalMs)
	cfg.System.EngagementPlanIntervalMs = sys.Key("EngagementPlanIntervalMs").MustInt(cfg.System.EngagementPlanIntervalMs)
	cfg.System.StatusReportIntervalMs = sys.Key("StatusReportIntervalMs").MustInt(cfg.System.StatusReportIntervalMs)
	cfg.System.CommandWorkers = sys.Key("CommandWorkers").MustInt(cfg.System.CommandWorkers)

	paths := f.Section("Paths")
	cfg.Paths.MineDataPath = paths.Key("MineDataPath").MustString(cfg.Paths.MineDataPath)
	cfg.Paths.LogPath = paths.Key("LogPath").MustString(cfg.Paths.LogPath)
	cfg.Paths.ConfigPath = paths.Key("ConfigPath").MustString(cfg.Paths.ConfigPath)

	mdp := f.Section("MineDropPlan")
	cfg.MineDropPlan.MaxPlanLists = mdp.Key("MaxPlanLists").MustInt(cfg.MineDropPlan.MaxPlanLists)
	cfg.MineDropPlan.MaxPlansPerList = mdp.Key("MaxPlansPerList").MustInt(cfg.MineDropPlan.MaxPlansPerList)

	wpn := f.Section("Weapon")
	cfg.Weapon.DefaultLaunchDelay = wpn.Key("DefaultLaunchDelay").MustFloat64(cfg.Weapon.DefaultLaunchDelay)
	cfg.Weapon.ALMMaxRange = wpn.Key("ALMMaxRange").MustFloat64(cfg.Weapon.ALMMaxRange)
	cfg.Weapon.ALMSpeed = wpn.Key("ALMSpeed").MustFloat64(cfg.Weapon.ALMSpeed)
	cfg.Weapon.ASMMaxRange = wpn.Key("ASMMaxRange").MustFloat64(cfg.Weapon.ASMMaxRange)
	cfg.Weapon.ASMSpeed = wpn.Key("ASMSpeed").MustFloat64(cfg.Weapon.ASMSpeed)
	cfg.Weapon.MineSpeed = wpn.Key("MineSpeed").MustFloat64(cfg.Weapon.MineSpeed)

	return cfg, nil
}

// UpdateInterval, EngagementPlanInterval, StatusReportInterval convert the
// millisecond config fields to time.Duration for the tick/replan drivers.
func (c Config) UpdateInterval() time.Duration {
	return time.Duration(c.System.UpdateIntervalMs) * time.Millisecond
}

func (c Config) EngagementPlanInterval() time.Duration {
	return time.Duration(c.System.EngagementPlanIntervalMs) * time.Millisecond
}

func (c Config) StatusReportInterval() time.Duration {
	return time.Duration(c.System.StatusReportIntervalMs) * time.Millisecond
}

// LaunchDelay converts Weapon.DefaultLaunchDelay (seconds) to a Duration.
func (c Config) LaunchDelay() time.Duration {
	return time.Duration(c.Weapon.DefaultLaunchDelay * float64(time.Second))
}
