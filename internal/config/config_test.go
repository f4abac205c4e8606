// internal/config/config_test.go
// Copyright(c) 2025-2026 wcs-core contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.System.MaxLaunchTubes != 6 {
		t.Errorf("MaxLaunchTubes default %d, expected 6", cfg.System.MaxLaunchTubes)
	}
	if cfg.System.UpdateIntervalMs != 100 {
		t.Errorf("UpdateIntervalMs default %d, expected 100", cfg.System.UpdateIntervalMs)
	}
	if cfg.MineDropPlan.MaxPlanLists != 15 || cfg.MineDropPlan.MaxPlansPerList != 15 {
		t.Errorf("MineDropPlan defaults %+v, expected 15/15", cfg.MineDropPlan)
	}
	if cfg.Weapon.DefaultLaunchDelay != 3.0 {
		t.Errorf("DefaultLaunchDelay default %f, expected 3.0", cfg.Weapon.DefaultLaunchDelay)
	}
	if cfg.LaunchDelay() != 3*time.Second {
		t.Errorf("LaunchDelay() = %v, expected 3s", cfg.LaunchDelay())
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.ini"))
	if err != nil {
		t.Fatalf("Load of missing file: %v", err)
	}
	if cfg != Default() {
		t.Errorf("missing file did not yield defaults: %+v", cfg)
	}
}

func TestLoadOverridesAndUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wcs.ini")
	contents := `[System]
MaxLaunchTubes = 8
UpdateIntervalMs = 50
SomeUnknownKey = whatever

[Weapon]
DefaultLaunchDelay = 1.5
MineSpeed = 7.5

[Paths]
MineDataPath = /tmp/mine-plans
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.System.MaxLaunchTubes != 8 {
		t.Errorf("MaxLaunchTubes %d, expected 8", cfg.System.MaxLaunchTubes)
	}
	if cfg.System.UpdateIntervalMs != 50 {
		t.Errorf("UpdateIntervalMs %d, expected 50", cfg.System.UpdateIntervalMs)
	}
	// Keys not in the file keep their defaults.
	if cfg.System.EngagementPlanIntervalMs != 1000 {
		t.Errorf("EngagementPlanIntervalMs %d, expected default 1000", cfg.System.EngagementPlanIntervalMs)
	}
	if cfg.Weapon.DefaultLaunchDelay != 1.5 {
		t.Errorf("DefaultLaunchDelay %f, expected 1.5", cfg.Weapon.DefaultLaunchDelay)
	}
	if cfg.Weapon.MineSpeed != 7.5 {
		t.Errorf("MineSpeed %f, expected 7.5", cfg.Weapon.MineSpeed)
	}
	if cfg.Weapon.ALMSpeed != 300 {
		t.Errorf("ALMSpeed %f, expected default 300", cfg.Weapon.ALMSpeed)
	}
	if cfg.Paths.MineDataPath != "/tmp/mine-plans" {
		t.Errorf("MineDataPath %q", cfg.Paths.MineDataPath)
	}
	if cfg.Paths.LogPath != "wcs-logs" {
		t.Errorf("LogPath %q, expected default", cfg.Paths.LogPath)
	}
}
