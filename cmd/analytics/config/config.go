// Package config assembles the component configurations of the analytics
// CLI from flags, environment variables and an optional config file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"golang-branch-analytics/internal/analytics"
	"golang-branch-analytics/internal/lifecycle"
	"golang-branch-analytics/internal/metrics"
	"golang-branch-analytics/internal/models"
	"golang-branch-analytics/internal/parsers"
	"golang-branch-analytics/internal/reporter"
	"golang-branch-analytics/pkg/logger"
)

// Setting keys shared by flags, environment variables and config files
const (
	KeyInput            = "input"
	KeyFormat           = "format"
	KeyOutput           = "output"
	KeyOutputDir        = "output-dir"
	KeyLocale           = "locale"
	KeyNoColor          = "no-color"
	KeyConcurrency      = "concurrency"
	KeyEncoding         = "encoding"
	KeyBranchRules      = "branch-rules"
	KeyDedupWindow      = "dedup-window"
	KeyChurnWindow      = "churn-window"
	KeyConversionWindow = "conversion-window"
	KeyAddr             = "addr"
	KeyCacheTTL         = "cache-ttl"
	KeyLogLevel         = "log-level"
	KeyLogFormat        = "log-format"
	KeyVerbose          = "verbose"
)

// EnvPrefix prefixes every environment variable read by the CLI
const EnvPrefix = "ANALYTICS"

// Config is the fully resolved CLI configuration
type Config struct {
	Inputs    []string                  `json:"inputs" yaml:"inputs"`
	Output    string                    `json:"output,omitempty" yaml:"output,omitempty"`
	OutputDir string                    `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	Addr      string                    `json:"addr" yaml:"addr"`
	CacheTTL  time.Duration             `json:"cache_ttl" yaml:"cache_ttl"`
	Parser    *parsers.MultiFileConfig  `json:"parser" yaml:"parser"`
	Pipeline  *analytics.PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Report    *reporter.ReportConfig    `json:"report" yaml:"report"`
	Logging   *logger.Config            `json:"logging" yaml:"logging"`
}

// DefaultDedupWindow is the default swipe deduplication window
func DefaultDedupWindow() time.Duration {
	return lifecycle.DefaultDedupWindow
}

// DefaultLifecycleWindow is the default churn and conversion window
func DefaultLifecycleWindow() time.Duration {
	return metrics.DefaultConfig().ChurnWindow
}

// SetDefaults registers the default value of every setting
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyFormat, string(reporter.FormatConsole))
	v.SetDefault(KeyLocale, string(models.LocaleKorean))
	v.SetDefault(KeyConcurrency, parsers.DefaultMultiFileConfig().MaxConcurrency)
	v.SetDefault(KeyEncoding, parsers.EncodingUTF8)
	v.SetDefault(KeyDedupWindow, lifecycle.DefaultDedupWindow)
	v.SetDefault(KeyChurnWindow, DefaultLifecycleWindow())
	v.SetDefault(KeyConversionWindow, metrics.DefaultConfig().ConversionWindow)
	v.SetDefault(KeyAddr, ":8080")
	v.SetDefault(KeyCacheTTL, analytics.DefaultTTL)
	v.SetDefault(KeyLogLevel, string(logger.InfoLevel))
	v.SetDefault(KeyLogFormat, string(logger.TextFormat))
}

// BindEnv makes every setting readable from ANALYTICS_* variables
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// Load resolves the configuration from v
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Inputs:    splitList(v.GetStringSlice(KeyInput)),
		Output:    v.GetString(KeyOutput),
		OutputDir: v.GetString(KeyOutputDir),
		Addr:      v.GetString(KeyAddr),
		CacheTTL:  v.GetDuration(KeyCacheTTL),
		Parser:    parsers.DefaultMultiFileConfig(),
		Pipeline:  analytics.DefaultPipelineConfig(),
		Report:    reporter.DefaultReportConfig(),
	}

	cfg.Parser.MaxConcurrency = v.GetInt(KeyConcurrency)
	cfg.Parser.CSV.Encoding = v.GetString(KeyEncoding)

	cfg.Pipeline.Dedup.Window = v.GetDuration(KeyDedupWindow)
	cfg.Pipeline.Metrics.ChurnWindow = v.GetDuration(KeyChurnWindow)
	cfg.Pipeline.Metrics.ConversionWindow = v.GetDuration(KeyConversionWindow)

	if path := v.GetString(KeyBranchRules); path != "" {
		rules, err := LoadBranchRules(path)
		if err != nil {
			return nil, err
		}
		cfg.Pipeline.BranchRules = rules
	} else if v.IsSet("branches.rules") {
		var rules []lifecycle.BranchRule
		if err := v.UnmarshalKey("branches.rules", &rules); err != nil {
			return nil, fmt.Errorf("invalid branches.rules: %w", err)
		}
		cfg.Pipeline.BranchRules = rules
	}

	cfg.Report.Format = reporter.OutputFormat(strings.ToLower(v.GetString(KeyFormat)))
	cfg.Report.Locale = models.Locale(strings.ToLower(v.GetString(KeyLocale)))
	cfg.Report.UseColors = !v.GetBool(KeyNoColor)

	cfg.Logging = logger.ConfigFrom(v.GetString(KeyLogLevel), v.GetString(KeyLogFormat), v.GetBool(KeyVerbose))

	return cfg, nil
}

// Validate checks every component configuration
func (c *Config) Validate() error {
	if err := c.Parser.Validate(); err != nil {
		return fmt.Errorf("parser: %w", err)
	}
	if _, err := lifecycle.NewBranchCanonicalizer(c.Pipeline.BranchRules); err != nil {
		return fmt.Errorf("branch rules: %w", err)
	}
	if err := c.Pipeline.Dedup.Validate(); err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if err := c.Pipeline.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := c.Report.Validate(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.CacheTTL)
	}
	return nil
}

// ValidateInputs checks that at least one input is given and every input is a readable file
func (c *Config) ValidateInputs() error {
	if len(c.Inputs) == 0 {
		return fmt.Errorf("at least one input file is required")
	}
	for _, path := range c.Inputs {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return fmt.Errorf("input is a directory, expected a file: %s", path)
		}
	}
	return nil
}

type branchRuleEntry struct {
	Branch   string   `json:"branch" yaml:"branch" toml:"branch"`
	Keywords []string `json:"keywords" yaml:"keywords" toml:"keywords"`
}

type branchRulesFile struct {
	Rules []branchRuleEntry `json:"rules" yaml:"rules" toml:"rules"`
}

// LoadBranchRules reads an ordered branch rule list from a TOML, YAML or
// JSON file. The file holds a single "rules" list of {branch, keywords}.
func LoadBranchRules(filePath string) ([]lifecycle.BranchRule, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("error accessing branch rules file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a file", filePath)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading branch rules file: %w", err)
	}

	var file branchRulesFile
	switch ext := strings.ToLower(filepath.Ext(filePath)); ext {
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("error parsing TOML file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("error parsing YAML file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("error parsing JSON file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported branch rules format: %s", ext)
	}

	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("branch rules file %s defines no rules", filePath)
	}

	rules := make([]lifecycle.BranchRule, 0, len(file.Rules))
	for _, r := range file.Rules {
		rules = append(rules, lifecycle.BranchRule{Branch: models.Branch(r.Branch), Keywords: r.Keywords})
	}
	return rules, nil
}

// Dump renders the resolved configuration as YAML, TOML or JSON
func (c *Config) Dump(format string) ([]byte, error) {
	settings := c.settings()
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return yaml.Marshal(settings)
	case "toml":
		tree, err := toml.TreeFromMap(settings)
		if err != nil {
			return nil, err
		}
		return []byte(tree.String()), nil
	case "json":
		return json.MarshalIndent(settings, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported dump format: %s", format)
	}
}

// settings flattens the configuration into plain values
func (c *Config) settings() map[string]interface{} {
	rules := make([]map[string]interface{}, 0, len(c.Pipeline.BranchRules))
	for _, r := range c.Pipeline.BranchRules {
		keywords := make([]interface{}, len(r.Keywords))
		for i, kw := range r.Keywords {
			keywords[i] = kw
		}
		rules = append(rules, map[string]interface{}{
			"branch":   r.Branch.String(),
			"keywords": keywords,
		})
	}
	inputs := make([]interface{}, len(c.Inputs))
	for i, in := range c.Inputs {
		inputs[i] = in
	}

	return map[string]interface{}{
		"input": inputs,
		"parser": map[string]interface{}{
			"concurrency": int64(c.Parser.MaxConcurrency),
			"encoding":    c.Parser.CSV.Encoding,
		},
		"dedup": map[string]interface{}{
			"window": c.Pipeline.Dedup.Window.String(),
		},
		"metrics": map[string]interface{}{
			"churn_window":       c.Pipeline.Metrics.ChurnWindow.String(),
			"conversion_window":  c.Pipeline.Metrics.ConversionWindow.String(),
			"loyal_min_visits":   int64(c.Pipeline.Metrics.LoyalMinVisits),
			"regular_min_visits": int64(c.Pipeline.Metrics.RegularMinVisits),
			"regular_max_visits": int64(c.Pipeline.Metrics.RegularMaxVisits),
		},
		"branches": map[string]interface{}{
			"rules": rules,
		},
		"report": map[string]interface{}{
			"format": string(c.Report.Format),
			"locale": string(c.Report.Locale),
			"color":  c.Report.UseColors,
		},
		"serve": map[string]interface{}{
			"addr":      c.Addr,
			"cache_ttl": c.CacheTTL.String(),
		},
		"logging": map[string]interface{}{
			"level":  string(c.Logging.Level),
			"format": string(c.Logging.Format),
		},
	}
}

// splitList accepts both repeated flags and comma separated values from env
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
