// Package server is the in-memory development counterpart the client talks
// to: a directory (login, roster, history) over HTTP and the realtime
// event fan-out over websocket. Nothing here persists across restarts; it
// exists for local runs and integration work.
package server
