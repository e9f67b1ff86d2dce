// Package refresh encodes and decodes opaque rotating refresh tokens.
//
// A token is base64url(id || secret): a 16 byte row id used to look the token
// up and a 32 byte secret of which only the SHA-256 digest is ever stored.
// Clients must treat the value as opaque. Rotation, reuse detection and
// revocation are implemented by the token service, not here.
package refresh
