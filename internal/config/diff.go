package config

import (
	"reflect"
	"strings"

	logx "ftmaint/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (DSN, tokens) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}

	// Server (never log the DSN itself)
	if strings.TrimSpace(oldCfg.Server.DSN) != strings.TrimSpace(newCfg.Server.DSN) ||
		!reflect.DeepEqual(oldCfg.Server.IncludeDatabases, newCfg.Server.IncludeDatabases) ||
		!reflect.DeepEqual(oldCfg.Server.ExcludeDatabases, newCfg.Server.ExcludeDatabases) ||
		oldCfg.Server.ScanRatePerSec != newCfg.Server.ScanRatePerSec {
		changed = append(changed, "server")
		attrs = append(attrs,
			logx.Int("server.include_count", len(newCfg.Server.IncludeDatabases)),
			logx.Int("server.exclude_count", len(newCfg.Server.ExcludeDatabases)),
			logx.Int("server.scan_rate_per_sec", newCfg.Server.ScanRatePerSec),
		)
	}

	if oldCfg.History != newCfg.History {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.String("history.driver", newCfg.History.Driver),
			logx.String("history.path", newCfg.History.Path),
		)
	}

	if oldCfg.Maintenance != newCfg.Maintenance {
		changed = append(changed, "maintenance")
		attrs = append(attrs,
			logx.Int("maintenance.reorg_threshold", newCfg.Maintenance.ReorgThreshold),
			logx.Int("maintenance.rebuild_threshold", newCfg.Maintenance.RebuildThreshold),
			logx.Int("maintenance.stop_after", newCfg.Maintenance.StopAfter),
			logx.Int("maintenance.window_minutes", newCfg.Maintenance.WindowMinutes),
		)
	}

	oldSched := ScheduleConfig{}
	if oldCfg.Schedule != nil {
		oldSched = *oldCfg.Schedule
	}
	newSched := ScheduleConfig{}
	if newCfg.Schedule != nil {
		newSched = *newCfg.Schedule
	}
	if oldSched != newSched {
		changed = append(changed, "schedule")
		attrs = append(attrs,
			logx.Bool("schedule.enabled", newSched.Enabled),
			logx.String("schedule.cron", newSched.Cron),
		)
	}

	return changed, attrs
}
