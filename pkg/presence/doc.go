/*
Package presence computes the live roster notifications emitted on every
room membership change.

A freshly-joined client has no prior state to diff against, so it receives
the complete roster (users:active); members already in the room only need
the incremental user:joined or user:left delta together with the updated
users:count. The tracker builds both shapes from the same membership
snapshot; the session hub decides who receives which.
*/
package presence
