/*
Package router fans domain events out to room members.

Delivery is intentionally at-most-once, best-effort: no acknowledgement,
no retry, no delivery guarantee when a recipient's channel closes
mid-send. An event is delivered to every current member of the target
room and never back to its originator, who already applied the change
optimistically. Lost frames are corrected by the recipient re-fetching
authoritative state from the persistence API, not by this router.
*/
package router
