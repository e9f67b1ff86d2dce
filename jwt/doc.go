// Package jwt issues and verifies short-lived access tokens.
//
// Tokens carry the subject id, role names, email, jti and the standard
// exp/nbf/iat/iss/aud claims. Verification is stateless: the package never
// consults revocation state. HS256 and Ed25519 are supported, with kid-based
// verify keys for rotation.
package jwt
