// Package automation routes verified vendor webhooks to idempotent
// automation handlers.
//
// Routing is keyed by the normalised (event type, task name) pair. Before a
// handler runs, three gates decide whether the event belongs to us:
//
//  1. the task's category name must normalise to "automatedtasks"
//     (skipped for the bootstrap automation, which creates that category);
//  2. the task's category id must equal the tenant's persisted
//     automated_tasks_category_id (also skipped for bootstrap);
//  3. the bootstrap automation runs at most once per tenant, guarded by
//     automations.initiation.completed_at.
//
// Events failing a gate are ignored, not errors: unrelated vendor tasks
// flow through the same webhook. Handler failures are logged and recorded
// on the Outcome; they never reach the HTTP layer.
package automation
