// Package store defines the persistence contracts of the identity service:
// the records it keeps, the repositories that read and write them, and the
// unit of work that groups writes into one transaction.
//
// # Transactions
//
// [UnitOfWork.Begin] returns a context carrying the open transaction.
// Repository methods called with that context join it; methods called with
// any other context run on their own. [Detach] strips the transaction (and
// the cancellation) from a context for writes that must persist even when
// the surrounding transaction rolls back: failed-login counters, refresh
// chain revocation after reuse, and audit entries.
//
// Two backends exist: store/pg (PostgreSQL through pgx) and store/memory
// (maps plus an undo log, for tests and single-node development).
package store
