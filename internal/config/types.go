package config

import (
	"errors"
	"fmt"
	"strings"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Server describes the SQL server whose databases are maintained.
	Server ServerConfig `json:"server"`

	// History configures the maintenance run log used for duration estimates.
	History HistoryConfig `json:"history"`

	Maintenance MaintenanceConfig `json:"maintenance"`

	// Schedule enables daemon mode: runs fire on a cron expression.
	// Omitted means one-shot only.
	Schedule *ScheduleConfig `json:"schedule,omitempty"`

	// Notify sends a run summary after each finished run.
	Notify *NotifyConfig `json:"notify,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type ServerConfig struct {
	// DSN is a go-mssqldb connection string (sqlserver://... or ADO form).
	DSN string `json:"dsn"`

	// Include/Exclude filter the enumerated database names.
	// Empty Include means "all user databases".
	IncludeDatabases []string `json:"include_databases,omitempty"`
	ExcludeDatabases []string `json:"exclude_databases,omitempty"`

	// ScanRatePerSec throttles per-database inventory queries. 0 = default (5).
	ScanRatePerSec int `json:"scan_rate_per_sec,omitempty"`
}

type HistoryConfig struct {
	// Driver: "sqlite" (default) or "file".
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path"`

	// BusyTimeout is a Go duration string (sqlite only).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MaintenanceConfig carries the per-run knobs.
//
// Zero values fall back to the documented defaults, except WindowMinutes
// and MaxSizeGB where 0 is meaningful (unbounded / unlimited).
type MaintenanceConfig struct {
	ReorgThreshold   int `json:"reorg_threshold,omitempty"`   // default 10
	RebuildThreshold int `json:"rebuild_threshold,omitempty"` // default 30
	StopAfter        int `json:"stop_after,omitempty"`        // default 3
	WindowMinutes    int `json:"window_minutes,omitempty"`    // 0 = unbounded
	MonthsForAvg     int `json:"months_for_avg,omitempty"`    // default 2
	MaxSizeGB        int `json:"max_size_gb,omitempty"`       // 0 = unlimited

	// PollInterval is the rebuild progress poll cadence. Default "30s".
	PollInterval string `json:"poll_interval,omitempty"`

	// DryRun decides but never dispatches and never writes history.
	DryRun bool `json:"dry_run,omitempty"`
}

type ScheduleConfig struct {
	Enabled bool `json:"enabled"`

	// Cron is a 5-field cron spec (seconds optional), e.g. "0 2 * * *".
	Cron     string `json:"cron"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Berlin"
}

type NotifyConfig struct {
	Telegram *TelegramNotifyConfig `json:"telegram,omitempty"`
}

type TelegramNotifyConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  int64  `json:"chat_id"`
}

const (
	DefaultReorgThreshold   = 10
	DefaultRebuildThreshold = 30
	DefaultStopAfter        = 3
	DefaultMonthsForAvg     = 2
	DefaultScanRatePerSec   = 5
)

// Normalize fills defaults in place. Call once after a successful parse.
func (c *Config) Normalize() {
	m := &c.Maintenance
	if m.ReorgThreshold == 0 {
		m.ReorgThreshold = DefaultReorgThreshold
	}
	if m.RebuildThreshold == 0 {
		m.RebuildThreshold = DefaultRebuildThreshold
	}
	if m.StopAfter == 0 {
		m.StopAfter = DefaultStopAfter
	}
	if m.MonthsForAvg == 0 {
		m.MonthsForAvg = DefaultMonthsForAvg
	}
	if strings.TrimSpace(m.PollInterval) == "" {
		m.PollInterval = "30s"
	}
	if c.Server.ScanRatePerSec == 0 {
		c.Server.ScanRatePerSec = DefaultScanRatePerSec
	}
	if strings.TrimSpace(c.History.Driver) == "" {
		c.History.Driver = "sqlite"
	}
}

// Validate rejects configs the runner cannot act on. Assumes Normalize ran.
func (c *Config) Validate() error {
	m := c.Maintenance
	if m.ReorgThreshold < 0 || m.RebuildThreshold < 0 {
		return errors.New("maintenance: thresholds must be >= 0")
	}
	if m.RebuildThreshold < m.ReorgThreshold {
		return fmt.Errorf("maintenance: rebuild_threshold (%d) must be >= reorg_threshold (%d)",
			m.RebuildThreshold, m.ReorgThreshold)
	}
	if m.StopAfter < 1 {
		return errors.New("maintenance: stop_after must be >= 1")
	}
	if m.WindowMinutes < 0 {
		return errors.New("maintenance: window_minutes must be >= 0")
	}
	if m.MonthsForAvg < 1 {
		return errors.New("maintenance: months_for_avg must be >= 1")
	}
	if m.MaxSizeGB < 0 {
		return errors.New("maintenance: max_size_gb must be >= 0")
	}
	if _, err := ParseDurationField("maintenance.poll_interval", m.PollInterval); err != nil {
		return err
	}
	if strings.TrimSpace(c.Server.DSN) == "" {
		return errors.New("server.dsn is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.History.Driver)) {
	case "sqlite", "sqlite3", "file":
	default:
		return fmt.Errorf("history: unknown driver %q", c.History.Driver)
	}
	if strings.TrimSpace(c.History.Path) == "" {
		return errors.New("history.path is required")
	}
	if s := c.Schedule; s != nil && s.Enabled && strings.TrimSpace(s.Cron) == "" {
		return errors.New("schedule.cron is required when schedule is enabled")
	}
	if n := c.Notify; n != nil && n.Telegram != nil && n.Telegram.Enabled {
		if strings.TrimSpace(n.Telegram.Token) == "" || n.Telegram.ChatID == 0 {
			return errors.New("notify.telegram: token and chat_id are required when enabled")
		}
	}
	return nil
}
