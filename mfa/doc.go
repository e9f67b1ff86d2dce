// Package mfa holds the multi-factor primitives: RFC 6238 TOTP enrollment and
// verification, one-time backup codes, numeric email OTPs, QR rendering of
// provisioning URIs, and at-rest sealing of TOTP secrets.
//
// Nothing here performs I/O. Persistence, attempt limiting and the MFA state
// machine live in the identity flows.
package mfa
