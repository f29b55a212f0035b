// Package httputil provides shared HTTP response/request helpers for the
// API and webhook handlers.
//
// Handlers use these helpers instead of writing raw http.ResponseWriter
// calls so that JSON formatting, error envelopes and body limits stay
// consistent across endpoints.
package httputil
