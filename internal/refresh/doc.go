// Package refresh runs one schedule refresh cycle:
//
//	fetch fingerprint input -> gate -> fetch schedule -> sanitize ->
//	normalize -> diff -> day status
//
// The page fingerprint gate skips everything after the first fetch when the
// relevant page text has not changed since the last committed cycle.
package refresh
