// Package schedule holds the outage schedule model and the pure functions
// around it: time-of-day parsing, the midnight merge, canonical payload
// hashing, quiet hours and display formatting.
//
// Nothing in this package does I/O.
package schedule
