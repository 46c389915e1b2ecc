// Package preflight provides readiness checks for the paths and stores
// framesel depends on.
//
// The CLI "framesel doctor" command runs RunAll and prints each Result;
// "framesel watch" runs it once before starting and refuses to continue
// when a check fails.
package preflight
