/*
Package auth verifies session credentials presented at connection time.

Credentials are HS256 JSON Web Tokens issued by the external identity
provider and validated here against a shared signing secret. Verification
fails closed: an empty credential, a signature mismatch, an unexpected
algorithm, and a structurally invalid payload all produce the same
ErrAuthentication, so the caller learns nothing beyond "refused".

Verification happens exactly once per connection, before any room
operation is possible, and is never re-run for the life of the channel.
*/
package auth
