// Package notifier delivers a cycle's schedule changes to people.
//
// Each activity change is its own message. Schedule updates for one address
// are joined under a "Schedule changed:" header. Delivery is fire-and-forget:
// failures are logged, counted and published on the event bus, never retried.
//
// # History
//
// For operator visibility, the service keeps a small in-memory history of
// recently sent messages, shown by /status.
package notifier
