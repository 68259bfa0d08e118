// Package config loads the process configuration from HCL.
//
// An embedded default configuration is read first, then each instance file
// in order. Later files override earlier ones attribute by attribute; block
// lists keyed by label (interface, implementation, settings) merge per
// label. Relative module_paths and store paths are resolved against the
// directory of the file that declares them.
//
//	log {
//	  level  = "debug"
//	  format = "json"
//	}
//
//	registry {
//	  validation_level = "warn"
//	  system_modules   = ["location"]
//	  module_paths     = ["./contracts"]
//	  modules          = ["storage", "format"]
//	}
//
//	store {
//	  backend = "file"
//	  path    = "./state/components.yaml"
//	}
//
//	interface "storage" {
//	  validation_level = "fail"
//	}
//
//	settings "storage.local" {
//	  root = "/srv/data"
//	}
package config
