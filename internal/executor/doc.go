// Package executor runs plans against registered handlers.
//
// A plan is split into batches (see domain.Plan.Batches). Single batches run
// one action to completion; parallel batches dispatch every member at once and
// wait for all of them before their effects are folded into the world state in
// catalog registration order. Transient failures are retried with exponential
// backoff, a terminal failure halts the plan after the current batch, and
// cancellation stops dispatch while keeping the effects already applied.
package executor
