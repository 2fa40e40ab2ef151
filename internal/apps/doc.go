// Package apps contains the demo programs the command line tool can run.
//
// Every app builds its own graph, seeds the engine with tasks and syncs, and
// summarizes the result once the run is over. Apps are looked up by name in a
// Registry; Default returns one with every built-in app registered.
package apps
