// Package feed turns the schedule spreadsheet into schedule entries.
//
// A Source returns the raw CSV export of the sheet; Layout maps the grid onto
// people and time slots. Malformed rows are skipped and reported, never fatal.
package feed
