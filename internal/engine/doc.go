// Package engine orchestrates one evaluation pass over the scheduled tasks:
// recurrence check, idempotency gate, assignment, materialization, and
// history append.
//
// The engine does not decide when to run. An external trigger (the minute
// cron cadence in internal/app, or a manual invocation) passes an explicit
// "now"; manual runs also pass the acting operator. Evaluation across
// schedules is embarrassingly parallel and fans out over a bounded worker
// group, while per-occurrence atomicity is carried by the store's unique
// success index.
package engine
