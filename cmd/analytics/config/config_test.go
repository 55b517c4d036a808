package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"golang-branch-analytics/internal/lifecycle"
	"golang-branch-analytics/internal/models"
	"golang-branch-analytics/internal/reporter"
	"golang-branch-analytics/pkg/logger"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	if cfg.Report.Format != reporter.FormatConsole {
		t.Errorf("format = %s, want console", cfg.Report.Format)
	}
	if cfg.Report.Locale != models.LocaleKorean {
		t.Errorf("locale = %s, want ko", cfg.Report.Locale)
	}
	if cfg.Pipeline.Dedup.Window != 30*time.Minute {
		t.Errorf("dedup window = %s", cfg.Pipeline.Dedup.Window)
	}
	if cfg.CacheTTL != 10*time.Minute {
		t.Errorf("cache ttl = %s", cfg.CacheTTL)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("addr = %s", cfg.Addr)
	}
	if len(cfg.Pipeline.BranchRules) != len(lifecycle.DefaultBranchRules()) {
		t.Errorf("expected default branch rules, got %d", len(cfg.Pipeline.BranchRules))
	}
	if !cfg.Report.UseColors {
		t.Error("colors should be enabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	v := newViper()
	v.Set(KeyInput, []string{"a.csv,b.xlsx", " c.csv "})
	v.Set(KeyFormat, "XLSX")
	v.Set(KeyLocale, "en")
	v.Set(KeyNoColor, true)
	v.Set(KeyDedupWindow, "45m")
	v.Set(KeyConcurrency, 2)
	v.Set(KeyEncoding, "euc-kr")
	v.Set(KeyVerbose, true)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := strings.Join(cfg.Inputs, "|"); got != "a.csv|b.xlsx|c.csv" {
		t.Errorf("inputs = %s", got)
	}
	if cfg.Report.Format != reporter.FormatXLSX {
		t.Errorf("format = %s", cfg.Report.Format)
	}
	if cfg.Report.Locale != models.LocaleEnglish || cfg.Report.UseColors {
		t.Errorf("unexpected report config: %+v", cfg.Report)
	}
	if cfg.Pipeline.Dedup.Window != 45*time.Minute {
		t.Errorf("dedup window = %s", cfg.Pipeline.Dedup.Window)
	}
	if cfg.Parser.MaxConcurrency != 2 || cfg.Parser.CSV.Encoding != "euc-kr" {
		t.Errorf("unexpected parser config: %+v", cfg.Parser)
	}
	if cfg.Logging.Level != logger.DebugLevel {
		t.Errorf("verbose should force debug level, got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config should be valid: %v", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ANALYTICS_DEDUP_WINDOW", "1h")
	t.Setenv("ANALYTICS_FORMAT", "json")

	v := newViper()
	BindEnv(v)
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pipeline.Dedup.Window != time.Hour {
		t.Errorf("dedup window = %s, want 1h", cfg.Pipeline.Dedup.Window)
	}
	if cfg.Report.Format != reporter.FormatJSON {
		t.Errorf("format = %s, want json", cfg.Report.Format)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative dedup window", func(c *Config) { c.Pipeline.Dedup.Window = -time.Minute }},
		{"bad format", func(c *Config) { c.Report.Format = "pdf" }},
		{"bad locale", func(c *Config) { c.Report.Locale = "fr" }},
		{"bad encoding", func(c *Config) { c.Parser.CSV.Encoding = "latin-9" }},
		{"zero concurrency", func(c *Config) { c.Parser.MaxConcurrency = 0 }},
		{"zero cache ttl", func(c *Config) { c.CacheTTL = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"zero churn window", func(c *Config) { c.Pipeline.Metrics.ChurnWindow = 0 }},
		{"reserved branch", func(c *Config) {
			c.Pipeline.BranchRules = []lifecycle.BranchRule{{Branch: models.BranchOther, Keywords: []string{"x"}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(newViper())
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateInputs(t *testing.T) {
	file := writeFile(t, "sales.csv", "고객번호\n")

	tests := []struct {
		name        string
		inputs      []string
		expectError bool
	}{
		{"existing file", []string{file}, false},
		{"no inputs", nil, true},
		{"missing file", []string{filepath.Join(t.TempDir(), "missing.csv")}, true},
		{"directory", []string{t.TempDir()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Inputs: tt.inputs}
			err := cfg.ValidateInputs()
			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadBranchRules(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "toml",
			file: "rules.toml",
			content: `
[[rules]]
branch = "판교"
keywords = ["판교", "pangyo"]

[[rules]]
branch = "강남"
keywords = ["강남"]
`,
		},
		{
			name: "yaml",
			file: "rules.yaml",
			content: `
rules:
  - branch: 판교
    keywords: [판교, pangyo]
  - branch: 강남
    keywords: [강남]
`,
		},
		{
			name:    "json",
			file:    "rules.json",
			content: `{"rules":[{"branch":"판교","keywords":["판교","pangyo"]},{"branch":"강남","keywords":["강남"]}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules, err := LoadBranchRules(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("LoadBranchRules() error = %v", err)
			}
			if len(rules) != 2 {
				t.Fatalf("expected 2 rules, got %d", len(rules))
			}
			if rules[0].Branch != "판교" || len(rules[0].Keywords) != 2 || rules[0].Keywords[1] != "pangyo" {
				t.Errorf("unexpected first rule: %+v", rules[0])
			}
			if rules[1].Branch != models.BranchGangnam {
				t.Errorf("unexpected second rule: %+v", rules[1])
			}

			canon, err := lifecycle.NewBranchCanonicalizer(rules)
			if err != nil {
				t.Fatalf("rules should be usable: %v", err)
			}
			if got := canon.Canonicalize("PANGYO 판교점"); got != "판교" {
				t.Errorf("Canonicalize() = %s", got)
			}
		})
	}
}

func TestLoadBranchRulesErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "none.yaml") }},
		{"directory", func(t *testing.T) string { return t.TempDir() }},
		{"unsupported extension", func(t *testing.T) string { return writeFile(t, "rules.ini", "x=1") }},
		{"malformed yaml", func(t *testing.T) string { return writeFile(t, "rules.yaml", "rules: [") }},
		{"no rules", func(t *testing.T) string { return writeFile(t, "rules.json", `{"rules":[]}`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadBranchRules(tt.path(t)); err == nil {
				t.Error("expected error but got none")
			}
		})
	}
}

func TestLoadWithBranchRulesFile(t *testing.T) {
	path := writeFile(t, "rules.yml", "rules:\n  - branch: 판교\n    keywords: [판교]\n")
	v := newViper()
	v.Set(KeyBranchRules, path)

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Pipeline.BranchRules) != 1 || cfg.Pipeline.BranchRules[0].Branch != "판교" {
		t.Errorf("unexpected rules: %+v", cfg.Pipeline.BranchRules)
	}
}

func TestDump(t *testing.T) {
	cfg, err := Load(newViper())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	t.Run("yaml", func(t *testing.T) {
		out, err := cfg.Dump("yaml")
		if err != nil {
			t.Fatalf("Dump() error = %v", err)
		}
		var decoded map[string]interface{}
		if err := yaml.Unmarshal(out, &decoded); err != nil {
			t.Fatalf("invalid yaml: %v", err)
		}
		dedup, ok := decoded["dedup"].(map[string]interface{})
		if !ok || dedup["window"] != "30m0s" {
			t.Errorf("unexpected dedup section: %v", decoded["dedup"])
		}
	})

	t.Run("json", func(t *testing.T) {
		out, err := cfg.Dump("json")
		if err != nil {
			t.Fatalf("Dump() error = %v", err)
		}
		var decoded struct {
			Serve struct {
				Addr string `json:"addr"`
			} `json:"serve"`
		}
		if err := json.Unmarshal(out, &decoded); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if decoded.Serve.Addr != ":8080" {
			t.Errorf("addr = %s", decoded.Serve.Addr)
		}
	})

	t.Run("toml", func(t *testing.T) {
		out, err := cfg.Dump("toml")
		if err != nil {
			t.Fatalf("Dump() error = %v", err)
		}
		if !strings.Contains(string(out), "[serve]") {
			t.Errorf("toml output missing serve table:\n%s", out)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if _, err := cfg.Dump("ini"); err == nil {
			t.Error("expected error")
		}
	})
}
