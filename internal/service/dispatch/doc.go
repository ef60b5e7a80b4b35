// Package dispatch drains the delivery queue in bounded runs.
//
// A run first sweeps queued tasks older than the send window to skipped,
// then takes up to maxPerRun fresh queued tasks and hands them to the
// configured provider, either one call per task (single mode) or one
// call per template chunk (batch mode). Every send path re-checks task
// status and treats an already sent task as a no-op. When a run finds an
// empty queue after previous runs had work, a completion notification
// fires exactly once with the day's totals.
package dispatch
