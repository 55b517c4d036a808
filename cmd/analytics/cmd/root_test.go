package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"golang-branch-analytics/cmd/analytics/config"
)

func TestSetVersionInfo(t *testing.T) {
	defer SetVersionInfo("dev", "unknown", "unknown")

	SetVersionInfo("1.4.0", "abc123", "2025-03-01")
	if rootCmd.Version != "1.4.0" {
		t.Errorf("version = %s, want 1.4.0", rootCmd.Version)
	}

	SetVersionInfo("dev", "abc123", "2025-03-01")
	if !strings.Contains(rootCmd.Version, "commit abc123") {
		t.Errorf("dev version should include commit, got %s", rootCmd.Version)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	defer versionCmd.SetOut(nil)

	versionCmd.Run(versionCmd, nil)
	for _, want := range []string{"analytics", "commit:", "go:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("version output missing %q: %s", want, out.String())
		}
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{"report": false, "serve": false, "version": false, "config": false, "sample": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %s not registered", name)
		}
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		format      string
		expectError bool
	}{
		{"defaults", "info", "text", false},
		{"json debug", "DEBUG", "json", false},
		{"bad level", "chatty", "text", true},
		{"bad format", "info", "xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Set(config.KeyLogLevel, tt.level)
			viper.Set(config.KeyLogFormat, tt.format)
			defer func() {
				viper.Set(config.KeyLogLevel, "info")
				viper.Set(config.KeyLogFormat, "text")
			}()

			err := setupLogger()
			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigShow(t *testing.T) {
	setReportFlags(t, map[string]interface{}{config.KeyDedupWindow: "45m"})

	var out bytes.Buffer
	configShowCmd.SetOut(&out)
	defer configShowCmd.SetOut(nil)

	dumpFormat = "yaml"
	if err := configShowCmd.RunE(configShowCmd, nil); err != nil {
		t.Fatalf("config show error = %v", err)
	}
	if !strings.Contains(out.String(), "window: 45m0s") {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	dumpFormat = "ini"
	defer func() { dumpFormat = "yaml" }()
	if err := configShowCmd.RunE(configShowCmd, nil); err == nil {
		t.Error("expected error for unsupported syntax")
	}
}

func TestValidateServeFlags(t *testing.T) {
	sales := writeSales(t)

	tests := []struct {
		name        string
		flags       map[string]interface{}
		expectError bool
	}{
		{"valid", map[string]interface{}{config.KeyInput: []string{sales}, config.KeyAddr: ":0", config.KeyCacheTTL: "5m"}, false},
		{"no input", map[string]interface{}{config.KeyAddr: ":0", config.KeyCacheTTL: "5m"}, true},
		{"zero ttl", map[string]interface{}{config.KeyInput: []string{sales}, config.KeyAddr: ":0", config.KeyCacheTTL: "0s"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setReportFlags(t, tt.flags)
			defer viper.Set(config.KeyCacheTTL, "10m")

			err := validateServeFlags(serveCmd, nil)
			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
