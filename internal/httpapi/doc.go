// Package httpapi exposes the Engine over a chi REST router: JSON bodies in,
// the {success, data | message, errors} envelope out.
package httpapi
