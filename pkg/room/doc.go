/*
Package room implements the room registry: the single shared mutable table
mapping project ids to current room membership.

A room is the unit of broadcast scoping. Rooms are created lazily on first
join and deleted the moment their membership becomes empty, so abandoned
projects cannot leak memory. A connection may belong to any number of
rooms at once (one per open browser tab is typical).

The registry deliberately carries no synchronization. It is owned by the
session hub's event loop and must only ever be touched from that loop,
the serialization of membership mutation required by the rest of the
system falls out of that ownership rule, not out of locking.
*/
package room
