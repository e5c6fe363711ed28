package config

import (
	"fmt"
	"strings"
	"time"

	"taskrota/internal/recurrence"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Engine  EngineConfig  `json:"engine"`
	Holiday HolidayConfig `json:"holiday,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig locates the sqlite database.
type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (e.g. "5s").
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// EngineConfig controls batch execution.
//
// Defaults (when fields are omitted/zero):
//   - workers: 4
//   - history_window: 50
//   - monthly_clamp: skip
//   - timezone: "UTC"
type EngineConfig struct {
	Workers       int `json:"workers,omitempty"`
	HistoryWindow int `json:"history_window,omitempty"`

	// MonthlyClamp decides what happens to a monthly rule on day 29..31
	// in a shorter month: "skip" or "clamp".
	MonthlyClamp string `json:"monthly_clamp,omitempty"`

	// Timezone is the IANA name the calendar is evaluated in.
	Timezone string `json:"timezone,omitempty"`
}

// HolidayConfig points at an external holiday table. When TablePath is
// empty the embedded table is used.
type HolidayConfig struct {
	TablePath string `json:"table_path,omitempty"`
}

// Validate rejects values that cannot be materialized. It is also the
// reload gate: a config that fails here is never committed.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path: required")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers: must be >= 0")
	}
	if c.Engine.HistoryWindow < 0 {
		return fmt.Errorf("engine.history_window: must be >= 0")
	}
	if _, err := c.Engine.ClampPolicy(); err != nil {
		return err
	}
	if _, err := c.Engine.Location(); err != nil {
		return err
	}
	return nil
}

func (e EngineConfig) ClampPolicy() (recurrence.MonthlyClampPolicy, error) {
	switch strings.TrimSpace(e.MonthlyClamp) {
	case "":
		return recurrence.ClampSkip, nil
	case string(recurrence.ClampSkip):
		return recurrence.ClampSkip, nil
	case string(recurrence.ClampLastDay):
		return recurrence.ClampLastDay, nil
	default:
		return "", fmt.Errorf("engine.monthly_clamp: unknown policy %q", e.MonthlyClamp)
	}
}

func (e EngineConfig) Location() (*time.Location, error) {
	tz := strings.TrimSpace(e.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %w", err)
	}
	return loc, nil
}
