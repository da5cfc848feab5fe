// Package storage is the durable state shared by the refresh cycle, the
// notification tick and the chat UI:
//   - per-(date, queue) schedule snapshots
//   - the sent-event ledger used for delivery dedup
//   - a small string cache (page fingerprint, per-date day flags)
//   - chat subscriptions and notification preferences
//
// Drivers: "sqlite" (default), "postgres", "memory".
package storage
