// Package alerts is the per-minute notification scheduler.
//
// Each tick walks every (chat, queue) subscription, resolves the queue's
// stored payloads around today into outage windows and fires BEFORE, START
// and END messages whose instant falls in the firing window. Delivery is
// at most once per event id through the durable sent-event ledger.
package alerts
