// Package holiday answers "is this date a holiday" against a versioned
// regional table.
package holiday

import (
	"time"

	"golang.org/x/time/rate"

	"taskrota/internal/core"
	"taskrota/pkg/logx"
)

// Resolver is a pure lookup over a holiday table.
//
// Dates beyond the table's covered range resolve to false so that stale
// holiday data can never block execution; that condition is a degraded-data
// warning, not an error, and is rate limited so a minute-cadence caller
// does not flood the log.
type Resolver struct {
	table *Table
	log   logx.Logger
	warn  *rate.Limiter
}

func NewResolver(table *Table, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Resolver{
		table: table,
		log:   log,
		warn:  rate.NewLimiter(rate.Every(6*time.Hour), 1),
	}
}

// IsHoliday reports whether d is a holiday in the configured region.
func (r *Resolver) IsHoliday(d core.Date) bool {
	if r == nil || r.table == nil {
		return false
	}
	if !r.table.Covers(d) {
		if r.warn.Allow() {
			r.log.Warn("date outside holiday table coverage; treating as non-holiday",
				logx.String("date", d.String()),
				logx.String("region", r.table.Region),
				logx.String("table_version", r.table.Version),
				logx.String("covered_until", r.table.Until.String()),
			)
		}
		return false
	}
	_, ok := r.table.Lookup(d)
	return ok
}

// Name returns the holiday name for d when IsHoliday(d) is true.
func (r *Resolver) Name(d core.Date) (string, bool) {
	if r == nil || r.table == nil || !r.table.Covers(d) {
		return "", false
	}
	return r.table.Lookup(d)
}
