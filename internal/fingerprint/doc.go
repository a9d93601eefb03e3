// Package fingerprint derives per-viewer forensic identities and the A/B
// variant sequence each identity is served.
//
// Both operations are pure functions of a durable server secret and public
// identifiers. Rotating the secret makes every previously issued identity and
// every expected sequence unrecoverable, so callers must treat it as durable.
package fingerprint
