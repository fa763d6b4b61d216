// Package domain holds the core types, error taxonomy and interfaces shared
// by every layer of the client.
//
// It is deliberately dependency-free so that stores, transports and the dev
// server can all import it without dragging in each other's stacks.
package domain
