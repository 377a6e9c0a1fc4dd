// Package workflow drives registry items through the scan pipeline.
//
// The Manager snapshots idle items, resolves each item's image payload,
// uploads it to the scan backend and asks the configured Producer for
// detection and crop results. Every state change is written back through
// queue.Registry as a keyed merge, so items removed or reset while a call is
// outstanding are left alone. A bounded pool of workers (workflow.concurrency_limit)
// pulls ids in snapshot order; an in-flight set keeps an id owned by at most
// one worker across overlapping Start and Retry calls.
//
// Per-item outcomes go to the notification sink. Queue-level start and
// completion summaries are logged and published through the notifier.
package workflow
