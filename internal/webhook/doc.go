// Package webhook receives vendor webhooks, verifies them and hands the
// result to the durable queue.
//
// # Request Flow
//
//  1. POST /webhooks/{vendor} arrives; unknown vendors get 404
//  2. Body size checked (413 if too large)
//  3. Account id read from headers, then body (400 if absent)
//  4. Signature header extracted (401 if absent)
//  5. Account context resolved (404 unknown, 500 misconfigured, 503 store down)
//  6. Signature verified (401 mismatch or stale, 500 when the account has no secret)
//  7. VerifiedWebhook enqueued (503 if the queue is unreachable)
//  8. 200 returned with job_id
//
// # Error Responses
//
// Bodies are {"error": "...", "code": "TEXT_CODE"} with generic messages.
// Details only reach the logs, with signature and credential headers
// redacted.
package webhook
