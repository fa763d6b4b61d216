// Package app wires application dependencies for the CLI.
//
// It loads Config from flags and an optional TOML file, builds the
// concrete stores, clients and services, and exposes them via the Wire
// struct for commands to use.
package app
