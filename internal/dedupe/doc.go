// Package dedupe provides the idempotency-key cache used by the development
// backend to reject replayed send requests within a configurable window.
package dedupe
