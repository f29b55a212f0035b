// Package domain defines the core types of the transactional mail subsystem:
// templates and their content blocks, send ledger records and delivery events.
//
// Types in this package are value objects with no database dependencies and
// no HTTP concerns. They are the shared language between the renderer, the
// sending service, the webhook receiver and the repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Pure methods (priority lookups, JSON codecs) are allowed
//   - Constants and enums belong here
package domain
