// Package config loads engine settings from HCL files.
//
// A config file holds at most one `engine` block and one `app` block:
//
//	engine {
//	  workers           = 4
//	  scheduler         = "round_robin"
//	  scope             = "edge"
//	  timeout           = "30s"
//	  task_budget       = 0
//	  cpu_affinity      = false
//	  scheduler_options = { max_iterations = 3 }
//	}
//
//	app {
//	  name     = "pagerank"
//	  vertices = 1000
//	}
//
// Every attribute is optional. Settings that are absent stay nil so callers
// can layer them between built-in defaults and command line flags. When a
// directory is loaded, its .hcl files are applied in lexical order and later
// files override earlier ones.
package config
