// Package apperr defines the error taxonomy of the broker. Every recoverable
// condition has a Code; codes are surfaced verbatim as the "reason" field of
// the response envelope and map to HTTP statuses in one place.
package apperr
