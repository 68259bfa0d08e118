// Package system owns the process-wide lifecycle: it loads the configuration
// and registry exactly once at a time, publishes the resulting pair and lets
// every other caller wait for the outcome.
//
// States move Unconfigured -> Starting -> Configured, or to Error when a load
// fails. The next caller after an Error drives recovery through Resetting.
// Reset always builds a wholly new registry; a published Env is never
// mutated.
package system
