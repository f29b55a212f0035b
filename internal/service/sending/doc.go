// Package sending delivers rendered emails through the outbound provider and
// records every attempt in the send ledger.
//
// Two entry points exist. SendTracked sends one message with a small retry
// budget. SendTrackedBatch splits a recipient list into provider-sized
// chunks, optionally personalizes each message, and paces chunks so the
// provider's rate limit is respected. Both consult the recipient allow-list
// first; a recipient it rejects causes no provider call and no ledger row.
//
// Failures never escape as Go errors: results carry per-recipient outcomes
// and human-readable error strings, and ledger write failures are logged
// without turning a delivered message into a failed one.
package sending
