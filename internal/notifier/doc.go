// Package notifier delivers outgoing chat messages for the alert and
// broadcast dispatchers.
//
// Sends are synchronous: the caller learns whether a message was delivered
// before it records the event as sent. Each send is rate limited, bounded by
// a per-call timeout and retried with jittered exponential backoff.
//
// For operator visibility the service keeps a small in-memory history of
// recently delivered messages.
package notifier
