// Package realtime maintains the one persistent, authenticated websocket
// connection to the server and dispatches its three inbound event kinds
// (message, peer-joined, peer-left) to registered handlers in arrival
// order. Outbound emits are fire-and-forget.
package realtime
