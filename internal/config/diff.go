package config

import (
	"sort"
	"strings"

	logx "taskrota/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections and safe
// structured attrs for logging the reload.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	if oldCfg.Engine != newCfg.Engine {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.Int("engine.workers", newCfg.Engine.Workers),
			logx.Int("engine.history_window", newCfg.Engine.HistoryWindow),
			logx.String("engine.monthly_clamp", newCfg.Engine.MonthlyClamp),
			logx.String("engine.timezone", strings.TrimSpace(newCfg.Engine.Timezone)),
		)
	}

	if strings.TrimSpace(oldCfg.Holiday.TablePath) != strings.TrimSpace(newCfg.Holiday.TablePath) {
		changed = append(changed, "holiday")
		attrs = append(attrs,
			logx.Bool("holiday.table_path_set", strings.TrimSpace(newCfg.Holiday.TablePath) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
