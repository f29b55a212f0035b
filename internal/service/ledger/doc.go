// Package ledger projects provider delivery events onto the send ledger.
//
// Status changes are monotonic: a record only moves to a status of strictly
// greater priority, and the guard lives in the repository's UPDATE so that
// concurrent webhook deliveries never regress a record. Every recognised
// event is also appended to the immutable event log, including events for
// messages the ledger has never seen.
//
// The service layer depends on the Repository interface defined in
// repository.go. It never imports net/http or database/sql directly.
package ledger
