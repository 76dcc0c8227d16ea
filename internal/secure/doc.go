// Package secure implements the per-request access-control gate.
//
// # Gate Algorithm
//
// Every protected route runs the same decision sequence:
//
//  1. A session already carrying a username proceeds straight to profile
//     enforcement.
//  2. Otherwise a remember-me cookie, if present, is decoded and verified.
//     A malformed cookie is ignored. An expired token triggers the logout
//     flow before continuing. A valid token re-establishes the session and
//     redirects to the original target.
//  3. Otherwise the trust-delegation handshake is attempted: if the external
//     authority has finished its phase and vouches for a user, the verifier
//     is asked to accept that user without a password.
//  4. Still unauthenticated, programmatic callers receive 401; interactive
//     callers are redirected to the login form with the original URL
//     preserved for exactly one round trip.
//  5. Once authenticated, the route's required profiles are checked in
//     order against the CredentialVerifier.
//
// # Extension Points
//
// The application plugs in behavior through two interfaces:
//
//   - CredentialVerifier: authenticates username/password pairs, accepts
//     trusted usernames, evaluates profile membership, and receives
//     lifecycle notifications. DefaultVerifier accepts everything.
//   - TrustDelegate: an external identity authority that can assert an
//     already-established identity. NoTrust never does.
//
// Errors raised inside either interface propagate to the gate's error
// handler with their original cause intact; they are never converted into
// a silent deny.
//
// # Remember-Me Tokens
//
// TokenCodec signs "<username>-<expiresAtEpochMillis>" with HMAC-SHA1 and a
// process-wide secret. The cookie value is the signature, username, and
// expiration joined by "-"; decoding splits at the first and last separator
// so usernames containing "-" survive the round trip.
package secure
