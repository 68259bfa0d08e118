// Package app wires configuration, the component store, the registry and
// the process lifecycle together. It is decoupled from any specific
// entrypoint like a CLI or server.
package app
