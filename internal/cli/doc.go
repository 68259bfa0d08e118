// Package cli parses the componentry command line into an app configuration
// and a command to run.
package cli
