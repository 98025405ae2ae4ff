package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultUserAgent is sent when settings.userAgent is empty.
const DefaultUserAgent = "askload/1.0"

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// Relative dataset paths in the target block are resolved against the
// file's directory.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseConfig(data, path)
	if err != nil {
		return nil, err
	}
	cfg.dir = filepath.Dir(path)
	cfg.resolvePaths()
	return cfg, nil
}

// ParseConfig parses configuration data. The format follows the extension
// of path and defaults to YAML.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ResolvePath returns p joined to the config directory when p is relative.
func (c *TestConfig) ResolvePath(p string) string {
	if p == "" || c.dir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.dir, p)
}

func (c *TestConfig) resolvePaths() {
	c.Target.Questions = c.ResolvePath(c.Target.Questions)
	c.Target.MentorsFile = c.ResolvePath(c.Target.MentorsFile)
	c.Target.URLs = c.ResolvePath(c.Target.URLs)
}

// ParseDurationString parses a Go duration ("30s", "1h30m", "500ms") or an
// integer number of seconds ("30").
func ParseDurationString(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults applies default values to a TestConfig.
func ApplyDefaults(config *TestConfig) {
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = Duration(30 * time.Second)
	}
	if config.Settings.MaxConnectionsPerHost == 0 {
		config.Settings.MaxConnectionsPerHost = 100
	}
	if config.Settings.MaxIdleConnsPerHost == 0 {
		config.Settings.MaxIdleConnsPerHost = 100
	}
	if config.Settings.UserAgent == "" {
		config.Settings.UserAgent = DefaultUserAgent
	}

	applyTargetDefaults(&config.Target)

	if config.Options == nil {
		config.Options = &ExecutionOptions{}
	}

	for _, sc := range config.Scenarios {
		if sc != nil {
			applyScenarioDefaults(sc)
		}
	}
}

func applyTargetDefaults(t *TargetConfig) {
	if t.Variant == "" {
		// A urls file with nothing to build from means direct-url.
		if t.URLs != "" && t.Questions == "" {
			t.Variant = VariantDirectURL
		} else {
			t.Variant = VariantMentorQuestion
		}
	}
	if t.RequestName == "" {
		t.RequestName = DefaultRequestName
	}
}

func applyScenarioDefaults(sc *ScenarioConfig) {
	if sc.Executor == "" {
		sc.Executor = "constant-vus"
	}

	switch sc.Executor {
	case "constant-vus", "per-vu-iterations", "shared-iterations":
		if sc.VUs == 0 {
			sc.VUs = 1
		}
	case "constant-arrival-rate":
		if sc.Rate == 0 {
			sc.Rate = 1
		}
		if sc.PreAllocatedVUs == 0 {
			sc.PreAllocatedVUs = 1
		}
		if sc.MaxVUs == 0 {
			sc.MaxVUs = sc.PreAllocatedVUs * 10
		}
	case "ramping-arrival-rate":
		if sc.PreAllocatedVUs == 0 {
			sc.PreAllocatedVUs = 1
		}
		if sc.MaxVUs == 0 {
			sc.MaxVUs = 100
		}
	}
}
