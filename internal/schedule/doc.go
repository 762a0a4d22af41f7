// Package schedule holds the domain model of the schedule sync and the
// reconciliation engine that folds one polling cycle into the stores.
//
// The engine is stateless between cycles: every cycle reads people and events
// fresh from the stores, applies its mutations inside a single transaction and
// returns the notifications derived from them.
package schedule
