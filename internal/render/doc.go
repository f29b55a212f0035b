// Package render turns stored templates into finished emails.
//
// Rendering is total: missing variables become empty strings, malformed
// embedded data yields empty blocks, and an absent or inactive template is
// reported as a nil result rather than an error. Required-variable checks are
// a separate step (ValidateVariables) that never blocks rendering.
package render
