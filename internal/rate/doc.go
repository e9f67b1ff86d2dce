// Package rate implements fixed-window counters on top of the shared cache.
//
// # Window semantics
//
// The first hit in a window creates the counter and arms its expiry; every
// later hit increments it. A window therefore starts at the first request, not
// at a wall-clock boundary. Counters live in the cache so every instance of the
// service sees the same totals.
//
// Domain policies (which key, which budget) live in internal/limiters and in
// the HTTP middleware; this package only counts.
package rate
