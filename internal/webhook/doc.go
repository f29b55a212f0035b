// Package webhook receives delivery callbacks from the email provider.
//
// Requests are authenticated with the provider's signing scheme (an
// HMAC-SHA256 over "{id}.{timestamp}.{body}" carried in svix-* headers)
// before any payload is read as JSON. Verified events are mapped to ledger
// statuses and handed to the ledger service.
package webhook
