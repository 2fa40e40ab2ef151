// Package app contains the core application logic. It defines the main App
// struct, its configuration, and the run lifecycle: build the demo graph,
// wire monitors, run the engine and report, decoupled from any specific
// entrypoint like a CLI.
package app
