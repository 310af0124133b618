// Package notifier delivers short operator messages: run summaries and
// abandoned-job alerts.
//
// Messages go through a bounded queue drained by a few workers. Delivery is
// rate limited, retried with jittered backoff, and identical texts inside
// DedupWindow are suppressed. The transport is any Sender; the telegram
// subpackage provides the production one.
//
// Notification is best-effort. A full queue or a dead transport never
// blocks or fails a run.
package notifier
