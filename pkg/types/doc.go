/*
Package types defines the shared data model for the Flowdeck realtime
session layer: connection identity, room membership entries, and the JSON
wire protocol exchanged between clients and the session daemon.

Every wire message is a single JSON frame with a `type` discriminator and a
`payload` object. Domain event payloads are relayed opaquely; this
subsystem routes them but never interprets the kind-specific data; the
external persistence API is the authority on what they mean.
*/
package types
