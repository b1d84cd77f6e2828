// Package client provides the Go client for the realtime session layer.
//
// Client maintains one websocket connection to the daemon, heartbeats it,
// and transparently reconnects with exponential backoff when the transport
// drops, rejoining every room the caller had joined. Because the session
// layer does not replay missed events, the client invokes a per-room
// resync hook after every reconnect so the application can re-fetch
// authoritative state.
//
// Reducer reconciles local optimistic mutations against the persistence
// API and against relayed remote events. Local changes apply immediately
// and either get confirmed (and broadcast once) or rolled back to the
// exact prior bytes. Remote events apply last-write-wins.
package client
