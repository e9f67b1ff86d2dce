// Package pipeline dispatches commands and queries to their handlers through
// an ordered chain of behaviors.
//
// A request is any value with a RequestName. Exactly one handler is
// registered per name with [Register]; [Send] runs the behaviors around it,
// the first behavior being the outermost. The service installs, in order:
//
//	Validation -> Transaction -> Performance -> Logging -> handler
//
// Transaction is skipped for read requests, recognised by name (see
// [IsQuery]).
package pipeline
