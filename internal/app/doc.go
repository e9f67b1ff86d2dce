// Package app assembles identityd: configuration loading, the fx module
// that builds store, cache, mailer, engine and HTTP server, and their
// lifecycle.
package app
