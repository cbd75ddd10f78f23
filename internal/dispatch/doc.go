// Package dispatch drains the durable job queue and delivers automation
// jobs, either to an in-process Processor or to the internal push endpoint
// over HTTP.
//
// Jobs are claimed serially, one at a time, in FIFO order. Delivery
// outcomes map onto queue states as follows:
//   - Outcome completed or ignored → succeeded
//   - Outcome failed (handler error, already logged) → failed
//   - BadRequest or NotFound (undecodable job, tenant gone) → failed, no retry
//   - any other error → retried with exponential backoff
//     (BackoffBase·2^(attempt-1), capped at maxBackoff) until MaxAttempts,
//     then dead
//
// Jobs interrupted by shutdown stay running and are requeued by
// RecoverRunning on the next start.
package dispatch
