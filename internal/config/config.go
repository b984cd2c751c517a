package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// GateConfig names one physical gate the service watches.
type GateConfig struct {
	ID   string `yaml:"id"`   // opaque key, e.g. "main_gate"
	Name string `yaml:"name"` // display name
}

type Config struct {
	Site struct {
		VillageID string       `yaml:"village_id"`
		Timezone  string       `yaml:"timezone"`
		Gates     []GateConfig `yaml:"gates"`
	} `yaml:"site"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address          string `yaml:"address"`
		Password         string `yaml:"password"`
		DB               int    `yaml:"db"`
		StatusTTLSeconds int    `yaml:"status_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Controller struct {
		PollIntervalSeconds int     `yaml:"poll_interval_seconds"`
		ActuationsPerSecond float64 `yaml:"actuations_per_second"`
		ActuationBurst      int     `yaml:"actuation_burst"`
	} `yaml:"controller"`

	Audit struct {
		Enabled         bool   `yaml:"enabled"`
		ExportPath      string `yaml:"export_path"`
		ExportOnStart   bool   `yaml:"export_on_start"`
		IntervalHours   int    `yaml:"interval_hours"`
		RetentionDays   int    `yaml:"retention_days"`
		SpreadsheetID   string `yaml:"spreadsheet_id"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"audit"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Site.VillageID == "" {
		return nil, fmt.Errorf("site.village_id is required")
	}
	if len(cfg.Site.Gates) == 0 {
		return nil, fmt.Errorf("site.gates must list at least one gate")
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/villagegate.db"
	}
	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Location resolves the site timezone; all schedule arithmetic happens in it.
func (c *Config) Location() (*time.Location, error) {
	if c.Site.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Site.Timezone)
}

func (c *Config) PollInterval() time.Duration {
	if c.Controller.PollIntervalSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Controller.PollIntervalSeconds) * time.Second
}

func (c *Config) ActuationRate() float64 {
	if c.Controller.ActuationsPerSecond <= 0 {
		return 1.0
	}
	return c.Controller.ActuationsPerSecond
}

func (c *Config) ActuationBurst() int {
	if c.Controller.ActuationBurst <= 0 {
		return 3
	}
	return c.Controller.ActuationBurst
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) StatusTTL() time.Duration {
	if c.Redis.StatusTTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Redis.StatusTTLSeconds) * time.Second
}

func (c *Config) AuditInterval() time.Duration {
	if c.Audit.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Audit.IntervalHours) * time.Hour
}

func (c *Config) AuditRetention() time.Duration {
	days := c.Audit.RetentionDays
	if days <= 0 {
		days = 31
	}
	return time.Duration(days) * 24 * time.Hour
}
