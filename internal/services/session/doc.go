// Package session is the top-level orchestrator: it restores or creates an
// authenticated identity, persists credentials, connects the realtime
// channel and exposes the conversation engine's operations to the
// presentation layer.
package session
