// Package roster maintains the ordered, deduplicated set of known peers
// and their online state. Peers are never removed once seen; going offline
// only flips their flag.
package roster
