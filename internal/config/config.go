package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/netreachhq/reachmon/internal/controller"
	"github.com/netreachhq/reachmon/internal/probe"
)

const (
	envConfigPath     = "REACHMON_CONFIG"
	DefaultConfigPath = "/etc/reachmon/config.yaml"

	defaultIntervalMillis = 30_000
	defaultTimeoutMillis  = 2_000
	defaultListenAddr     = "127.0.0.1:9410"
	defaultCheckPerMinute = 30
)

type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
	Listen  ListenConfig  `yaml:"listen"`
}

type MonitorConfig struct {
	IntervalMillis int            `yaml:"interval_ms"`
	Targets        []TargetConfig `yaml:"targets"`
}

type TargetConfig struct {
	URL           string            `yaml:"url"`
	TimeoutMillis int               `yaml:"timeout_ms"`
	Headers       map[string]string `yaml:"headers"`
	ExpectStatus  []int             `yaml:"expect_status"`
	BodyContains  string            `yaml:"body_contains"`
}

type ListenConfig struct {
	Addr           string `yaml:"addr"`
	CheckPerMinute int    `yaml:"check_per_minute"`
}

func Load(ctx context.Context, path string) (Config, error) {
	var cfg Config

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func LoadFromEnv(ctx context.Context) (Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	return Load(ctx, path)
}

func (c *Config) applyDefaults() {
	if c.Monitor.IntervalMillis <= 0 {
		c.Monitor.IntervalMillis = defaultIntervalMillis
	}
	if c.Listen.Addr == "" {
		c.Listen.Addr = defaultListenAddr
	}
	if c.Listen.CheckPerMinute <= 0 {
		c.Listen.CheckPerMinute = defaultCheckPerMinute
	}
	for i := range c.Monitor.Targets {
		if c.Monitor.Targets[i].TimeoutMillis <= 0 {
			c.Monitor.Targets[i].TimeoutMillis = defaultTimeoutMillis
		}
	}
}

// Interval returns the configured probe interval.
func (c Config) Interval() time.Duration {
	return time.Duration(c.Monitor.IntervalMillis) * time.Millisecond
}

// MonitorConfig converts the file representation into the controller's
// configuration, building a predicate per target from the declarative
// expectations.
func (c Config) MonitorConfig() (controller.Config, error) {
	targets := make([]probe.Target, 0, len(c.Monitor.Targets))
	for i, tc := range c.Monitor.Targets {
		tgt := probe.Target{
			URL:       tc.URL,
			Timeout:   time.Duration(tc.TimeoutMillis) * time.Millisecond,
			Headers:   cloneHeaders(tc.Headers),
			Predicate: buildPredicate(tc),
		}
		if err := tgt.Validate(); err != nil {
			return controller.Config{}, fmt.Errorf("target %d: %w", i, err)
		}
		targets = append(targets, tgt)
	}
	return controller.Config{
		Interval: c.Interval(),
		Targets:  targets,
	}, nil
}

// buildPredicate returns nil when the target declares no expectations, so
// the executor's 2xx default applies.
func buildPredicate(tc TargetConfig) probe.Predicate {
	expectStatus := append([]int(nil), tc.ExpectStatus...)
	bodyContains := tc.BodyContains
	if len(expectStatus) == 0 && bodyContains == "" {
		return nil
	}
	return func(resp probe.Response) bool {
		if len(expectStatus) > 0 {
			matched := false
			for _, code := range expectStatus {
				if resp.StatusCode == code {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		} else if !probe.Default2xx(resp) {
			return false
		}
		if bodyContains != "" && !strings.Contains(string(resp.Body), bodyContains) {
			return false
		}
		return true
	}
}

func cloneHeaders(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
